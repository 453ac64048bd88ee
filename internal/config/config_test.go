package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
store: /var/lib/scripthost/store.db
scripts_dir: /etc/scripthost/scripts
connect_timeout: 3s
instances:
  - id: main
    backend: ts3
    log_level: 5
  - id: lounge
    backend: discord
grants:
  admin-tools: [net, db]
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scripthost/store.db", cfg.StorePath)
	assert.Equal(t, "/etc/scripthost/scripts", cfg.ScriptsDir)
	assert.Equal(t, 3*time.Second, time.Duration(cfg.ConnectTimeout))

	require.Len(t, cfg.Instances, 2)
	assert.Equal(t, Instance{ID: "main", Backend: "ts3", LogLevel: 5}, cfg.Instances[0])
	assert.Equal(t, Instance{ID: "lounge", Backend: "discord"}, cfg.Instances[1])

	assert.Equal(t, []string{"net", "db"}, cfg.Grants["admin-tools"])
}

func TestParse_DefaultTimeout(t *testing.T) {
	cfg, err := Parse([]byte(`
store: s.db
scripts_dir: scripts
instances:
  - id: main
    backend: ts3
`))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.ConnectTimeout))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing_store", "scripts_dir: s\ninstances:\n  - {id: a, backend: ts3}\n"},
		{"missing_scripts_dir", "store: s.db\ninstances:\n  - {id: a, backend: ts3}\n"},
		{"no_instances", "store: s.db\nscripts_dir: s\n"},
		{"unknown_backend", "store: s.db\nscripts_dir: s\ninstances:\n  - {id: a, backend: irc}\n"},
		{"instance_no_id", "store: s.db\nscripts_dir: s\ninstances:\n  - {backend: ts3}\n"},
		{"malformed_yaml", "store: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_DuplicateInstanceID(t *testing.T) {
	_, err := Parse([]byte(`
store: s.db
scripts_dir: s
instances:
  - {id: main, backend: ts3}
  - {id: main, backend: discord}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate instance id")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Instances[0].ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
