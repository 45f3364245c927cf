package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig(t *testing.T) {
	t.Run("env file overrides base and secrets fill placeholders", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_SECRET}
server:
  port: ":8080"
`)
		writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
		writeFile(t, dir, "secrets.env", "# comment\nDB_SECRET=\"s3cret\"\n")

		cfgMap, err := LoadConfig("production", dir)
		require.NoError(t, err)

		var cfg struct {
			DB     DBConfig     `yaml:"db"`
			Server ServerConfig `yaml:"server"`
		}
		require.NoError(t, Decode(cfgMap, &cfg))

		assert.Equal(t, "db.internal", cfg.DB.Host)
		assert.Equal(t, 5432, cfg.DB.Port)
		assert.Equal(t, "s3cret", cfg.DB.Password)
		assert.Equal(t, ":8080", cfg.Server.Port)
	})

	t.Run("missing env file falls back to base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "mq:\n  url: amqp://guest@localhost\n")

		cfgMap, err := LoadConfig("staging", dir)
		require.NoError(t, err)

		var cfg struct {
			MQ MQConfig `yaml:"mq"`
		}
		require.NoError(t, Decode(cfgMap, &cfg))
		assert.Equal(t, "amqp://guest@localhost", cfg.MQ.URL)
	})

	t.Run("missing base is an error", func(t *testing.T) {
		_, err := LoadConfig("local", t.TempDir())
		require.Error(t, err)
	})
}

func TestSubstituteString(t *testing.T) {
	t.Setenv("ORDERFLOW_TEST_VAR", "from-env")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no placeholder", "plain", "plain"},
		{"secret wins", "${A}", "secret-a"},
		{"system env fallback", "x-${ORDERFLOW_TEST_VAR}", "x-from-env"},
		{"unknown kept", "${NOPE_NOT_SET}", "${NOPE_NOT_SET}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteString(tt.input, map[string]string{"A": "secret-a"}))
		})
	}
}

func TestMergeMapsNested(t *testing.T) {
	dst := map[string]interface{}{"db": map[string]interface{}{"host": "a", "port": 1}}
	src := map[string]interface{}{"db": map[string]interface{}{"host": "b"}}

	merged := mergeMaps(dst, src)
	db := merged["db"].(map[string]interface{})
	assert.Equal(t, "b", db["host"])
	assert.Equal(t, 1, db["port"])
}

func TestJWTConfigTokenTTL(t *testing.T) {
	assert.Equal(t, "24h0m0s", JWTConfig{}.TokenTTL().String())
	assert.Equal(t, "2h0m0s", JWTConfig{TTL: "2h"}.TokenTTL().String())
}
