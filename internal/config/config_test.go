package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.Dir)
	assert.Equal(t, "seller-tools-license", cfg.License.KeyPrefix)
	assert.True(t, cfg.License.SeedDefault)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
  read_timeout: 5s
storage:
  backend: sqlite
  sqlite_path: /tmp/licenses.db
license:
  key_prefix: admin-license
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
		assert.Equal(t, "admin-license", cfg.License.KeyPrefix)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("LICENSE_SERVER_PORT", "9100")
		t.Setenv("LICENSE_STORAGE_BACKEND", "MEMORY")
		t.Setenv("LICENSE_SECURITY_ALLOWED_ORIGINS", "http://a.test,http://b.test")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, BackendMemory, cfg.Storage.Backend)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	})

	t.Run("config file from env", func(t *testing.T) {
		t.Setenv("LICENSE_CONFIG_FILE", path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		errMsg  string
	}{
		{
			name:    "invalid port",
			content: "server:\n  port: 70000\n",
			errMsg:  "invalid server port",
		},
		{
			name:    "unknown backend",
			content: "storage:\n  backend: etcd\n",
			errMsg:  "unsupported storage backend",
		},
		{
			name:    "redis without url",
			content: "storage:\n  backend: redis\n",
			errMsg:  "redis url is required",
		},
		{
			name:    "sqlite without path",
			content: "storage:\n  backend: sqlite\n  dir: \"\"\n",
			errMsg:  "sqlite path or storage dir is required",
		},
		{
			name:    "empty key prefix",
			content: "license:\n  key_prefix: \" \"\n",
			errMsg:  "key prefix",
		},
		{
			name:    "malformed yaml",
			content: "server: [",
			errMsg:  "failed to load config from file",
		},
		{
			name:    "malformed env",
			content: "server:\n  port: 8080\n",
			env:     map[string]string{"LICENSE_SERVER_PORT": "eighty"},
			errMsg:  "failed to load config from env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfigFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_NormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "syslog"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.Equal(t, "logs/licensed.log", cfg.Logging.FilePath)
}
