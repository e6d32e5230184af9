// Package logging builds the zap logger shared by every component.
package logging

import (
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

const appName = "bus-seat-reservation"

// New returns a JSON production logger, or a human-readable development
// logger when dev is set.  env is attached to every entry.
func New(env string, dev bool) (*zap.Logger, error) {
    config := zap.NewProductionConfig()
    config.OutputPaths = []string{"stdout"}
    config.ErrorOutputPaths = []string{"stderr"}
    if dev {
        config = zap.NewDevelopmentConfig()
    }
    config.InitialFields = map[string]interface{}{"app": appName, "env": env}
    config.EncoderConfig.TimeKey = "timestamp"
    config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

    return config.Build()
}
