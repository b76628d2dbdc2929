package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		valueFlags []string
		boolFlags  []string
		want       []string
	}{
		{
			name:       "value flag with separate value",
			args:       []string{"-d", "/srv/weave", "-z", "x"},
			valueFlags: []string{"-d"},
			want:       []string{"-d", "/srv/weave"},
		},
		{
			name:       "value flag with equals",
			args:       []string{"-a=127.0.0.1:9000", "-z", "x"},
			valueFlags: []string{"-a"},
			want:       []string{"-a=127.0.0.1:9000"},
		},
		{
			name:       "unknown flags ignored",
			args:       []string{"-x", "1", "--y=2", "positional"},
			valueFlags: []string{"-c"},
			want:       []string{},
		},
		{
			name:       "value flag at end is kept as-is",
			args:       []string{"-c"},
			valueFlags: []string{"-c"},
			want:       []string{"-c"},
		},
		{
			name:       "next dash token is not a value",
			args:       []string{"-c", "-d", "dir"},
			valueFlags: []string{"-c", "-d"},
			want:       []string{"-c", "-d", "dir"},
		},
		{
			name:      "bool flag does not swallow positional",
			args:      []string{"-r", "positional"},
			boolFlags: []string{"-r"},
			want:      []string{"-r"},
		},
		{
			name:      "bool flag with explicit value",
			args:      []string{"-r=false"},
			boolFlags: []string{"-r"},
			want:      []string{"-r=false"},
		},
		{
			name:       "mixed flags keep order",
			args:       []string{"-r", "-a", ":8080", "--other", "x", "-register", "bob:pw"},
			valueFlags: []string{"-a", "-register"},
			boolFlags:  []string{"-r"},
			want:       []string{"-r", "-a", ":8080", "-register", "bob:pw"},
		},
		{
			name:       "empty args",
			args:       []string{},
			valueFlags: []string{"-c"},
			want:       []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.valueFlags, tt.boolFlags)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short -c with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/etc/weave/short.json"}
		assert.Equal(t, "/etc/weave/short.json", ConfigFile())
	})

	t.Run("long -config with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", "/etc/weave/long.json"}
		assert.Equal(t, "/etc/weave/long.json", ConfigFile())
	})

	t.Run("unknown flags are ignored", func(t *testing.T) {
		os.Args = []string{"testbin", "-x", "1", "-y", "2"}
		assert.Empty(t, ConfigFile())
	})

	t.Run("last wins", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/a.json", "-config", "/b.json"}
		assert.Equal(t, "/b.json", ConfigFile())
	})
}
