package logging

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
    for env, dev := range map[string]bool{"local": true, "prod": false} {
        logger, err := New(env, dev)
        require.NoError(t, err, env)
        require.NotNil(t, logger)
        assert.Equal(t, dev, logger.Core().Enabled(zapcore.DebugLevel), "debug enabled for %s", env)
        _ = logger.Sync()
    }
}
