package repository

import (
    "context"
    "strings"
    "sync"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

// MemoryUserStore is an in-memory UserStore.  It is safe for concurrent use.
type MemoryUserStore struct {
    mu         sync.RWMutex
    nextID     uint64
    byID       map[uint64]model.User
    byUsername map[string]uint64
}

func NewMemoryUserStore() *MemoryUserStore {
    return &MemoryUserStore{
        byID:       make(map[uint64]model.User),
        byUsername: make(map[string]uint64),
    }
}

func (s *MemoryUserStore) Create(ctx context.Context, username, email, password string, cost int) (uint64, error) {
    _ = ctx
    username = strings.TrimSpace(username)
    email = strings.ToLower(strings.TrimSpace(email))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.byUsername[username]; ok {
        return 0, ErrUsernameExists
    }
    s.nextID++
    now := time.Now().UTC()
    s.byID[s.nextID] = model.User{
        ID:           s.nextID,
        Username:     username,
        Email:        email,
        PasswordHash: hash,
        IsActive:     true,
        CreatedAt:    now,
        UpdatedAt:    now,
    }
    s.byUsername[username] = s.nextID
    return s.nextID, nil
}

func (s *MemoryUserStore) GetByUsername(ctx context.Context, username string) (model.User, error) {
    _ = ctx
    s.mu.RLock()
    defer s.mu.RUnlock()
    id, ok := s.byUsername[strings.TrimSpace(username)]
    if !ok {
        return model.User{}, ErrNotFound
    }
    return s.byID[id], nil
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
    _ = ctx
    s.mu.RLock()
    defer s.mu.RUnlock()
    u, ok := s.byID[id]
    if !ok {
        return model.User{}, ErrNotFound
    }
    return u, nil
}

// MemoryTokenStore is an in-memory TokenStore.  It is safe for concurrent use.
type MemoryTokenStore struct {
    mu     sync.Mutex
    tokens map[string]model.RefreshToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
    return &MemoryTokenStore{tokens: make(map[string]model.RefreshToken)}
}

func (s *MemoryTokenStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
    _ = ctx
    s.mu.Lock()
    defer s.mu.Unlock()
    s.tokens[tokenHash] = model.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: exp.UTC()}
    return nil
}

func (s *MemoryTokenStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
    _ = ctx
    s.mu.Lock()
    defer s.mu.Unlock()
    t, ok := s.tokens[tokenHash]
    if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
        return 0, ErrNotFound
    }
    return t.UserID, nil
}

func (s *MemoryTokenStore) RevokeByHash(ctx context.Context, tokenHash string) error {
    _ = ctx
    s.mu.Lock()
    defer s.mu.Unlock()
    if t, ok := s.tokens[tokenHash]; ok && t.RevokedAt == nil {
        now := time.Now().UTC()
        t.RevokedAt = &now
        s.tokens[tokenHash] = t
    }
    return nil
}

func (s *MemoryTokenStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
    _ = ctx
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    for h, t := range s.tokens {
        if t.UserID == userID && t.RevokedAt == nil {
            t.RevokedAt = &now
            s.tokens[h] = t
        }
    }
    return nil
}
