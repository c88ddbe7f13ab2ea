package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLevels(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
		"info":  zap.NewAtomicLevelAt(zap.InfoLevel),
		"warn":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"":      zap.NewAtomicLevelAt(zap.ErrorLevel),
	}
	for level, want := range cases {
		for _, format := range []string{"json", "console"} {
			log, err := New(level, format)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(want.Level()), "%s/%s", level, format)
			if want.Level() > zap.DebugLevel {
				assert.False(t, log.Core().Enabled(want.Level()-1), "%s/%s", level, format)
			}
		}
	}
}
