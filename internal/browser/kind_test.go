package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"chrome", Chrome},
		{"CHROME", Chrome},
		{" Firefox ", Firefox},
		{"edge", Edge},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("unknown kinds are rejected", func(t *testing.T) {
		_, err := ParseKind("opera")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedBrowserKind))
	})
}

func TestKind_ChromiumFamily(t *testing.T) {
	assert.True(t, Chrome.ChromiumFamily())
	assert.True(t, Edge.ChromiumFamily())
	assert.False(t, Firefox.ChromiumFamily())
}

func TestLevelFromConsole(t *testing.T) {
	assert.Equal(t, LevelError, LevelFromConsole("error"))
	assert.Equal(t, LevelWarn, LevelFromConsole("warning"))
	assert.Equal(t, LevelDebug, LevelFromConsole("debug"))
	assert.Equal(t, LevelInfo, LevelFromConsole("log"))
	assert.Equal(t, LevelInfo, LevelFromConsole(""))
}
