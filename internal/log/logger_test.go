package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		env  string
		want zap.AtomicLevel
	}{
		{"prod", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"test", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"dev", zap.NewAtomicLevelAt(zap.DebugLevel)},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			logger, err := NewLogger(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Level() == zap.DebugLevel, logger.Core().Enabled(zap.DebugLevel))
			assert.True(t, logger.Core().Enabled(zap.WarnLevel))
		})
	}
}
