package logger

import (
  "go.uber.org/zap"
  "go.uber.org/zap/zapcore"
  "os"
  "strings"
)

// Log is the process logger. It is a no-op until Init is called so that
// library code and tests can log unconditionally.
var Log = zap.NewNop()

// Init sets up a global logger. Call once in main().
func Init() error {
  // JSON output with level filtering; LOG_FORMAT=console switches to the development encoder
  cfg := zap.NewProductionConfig()
  if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
    cfg = zap.NewDevelopmentConfig()
  }
  cfg.EncoderConfig.TimeKey = "ts"
  cfg.EncoderConfig.MessageKey = "msg"
  cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
  if level := os.Getenv("LOG_LEVEL"); level != "" {
    cfg.Level.SetLevel(parseLevel(level))
  }
  l, err := cfg.Build()
  if err != nil {
    return err
  }
  Log = l
  return nil
}

// Or returns l, or the process logger when l is nil.
func Or(l *zap.Logger) *zap.Logger {
  if l != nil {
    return l
  }
  return Log
}

// parseLevel is a helper mapping strings to zapcore.Level
func parseLevel(s string) zapcore.Level {
  switch strings.ToLower(s) {
  case "debug":
    return zapcore.DebugLevel
  case "warn":
    return zapcore.WarnLevel
  case "error":
    return zapcore.ErrorLevel
  default:
    return zapcore.InfoLevel
  }
}
