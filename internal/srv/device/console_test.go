package device

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Active(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content string
		want    int
		wantErr bool
	}{
		{content: "tty7\n", want: 7},
		{content: "tty1", want: 1},
		{content: "ttyS0\n", wantErr: true},
		{content: "console\n", wantErr: true},
	}

	for _, tt := range tests {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, activeConsoleFile, []byte(tt.content), 0o644))

		vt, err := NewConsole(fs).Active()
		if tt.wantErr {
			assert.Error(t, err, tt.content)
			continue
		}
		require.NoError(t, err, tt.content)
		assert.Equal(t, tt.want, vt)
	}

	_, err := NewConsole(afero.NewMemMapFs()).Active()
	assert.Error(t, err)
}
