package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level  string
		format string
		want   zapcore.Level
	}{
		{level: "", format: "", want: zapcore.InfoLevel},
		{level: "debug", format: "console", want: zapcore.DebugLevel},
		{level: "WARN", format: "json", want: zapcore.WarnLevel},
		{level: "error", format: "text", want: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New("loud", "console")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = New("info", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
