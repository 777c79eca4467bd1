package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	prevGlobal, prevLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevGlobal)
		log.Logger = prevLogger
		zerolog.DefaultContextLogger = nil
	})

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := NewLogger(LogConfig{Level: tt.level, Format: "json"})
		assert.Equal(t, tt.want, logger.GetLevel(), tt.level)
		assert.Equal(t, tt.want, zerolog.GlobalLevel())
		assert.Equal(t, tt.want, log.Logger.GetLevel())
	}

	console := NewLogger(LogConfig{Level: "error", Format: "Console"})
	assert.Equal(t, zerolog.ErrorLevel, console.GetLevel())
}
