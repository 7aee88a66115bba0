package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"GMERGE_CONFIG_DIR", "GMERGE_CLIENT_SECRET_FILE", "GMERGE_CLIENT_ID", "GMERGE_CLIENT_SECRET",
	"GMERGE_REDIRECT_URL", "GMERGE_DELAY_SECONDS", "GMERGE_LABEL", "GMERGE_MODE", "GMERGE_SENDER",
	"GMERGE_BACKUP_DIR", "GMERGE_BACKUP_EMAIL_COPY", "GMERGE_S3_BUCKET", "GMERGE_S3_REGION",
	"GMERGE_S3_ENDPOINT", "GMERGE_S3_PATH_STYLE", "GMERGE_S3_ACCESS_KEY", "GMERGE_S3_SECRET_KEY",
	"GMERGE_S3_PREFIX", "GMERGE_LISTEN", "GMERGE_SESSION_TTL", "GMERGE_REDIS_ADDR",
	"GMERGE_SECURE_COOKIES", "GMERGE_STORE_PATH", "GMERGE_LOG_LEVEL", "GMERGE_LOG_FORMAT", "GMERGE_LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
	// keep stray .env files in the package dir out of the picture
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, filepath.Join(dir, "client_secret.json"), cfg.Gmail.ClientSecretFile)
	assert.Equal(t, 30, cfg.Merge.DelaySeconds)
	assert.Equal(t, 30*time.Second, cfg.Delay())
	assert.Equal(t, DefaultLabel, cfg.Merge.Label)
	assert.Equal(t, "new", cfg.Merge.Mode)
	assert.Equal(t, DefaultListen, cfg.Web.Listen)
	assert.Equal(t, DefaultSessionTTL, cfg.Web.SessionTTL)
	assert.Equal(t, filepath.Join(dir, "gmerge.db"), cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.S3Enabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := `
merge:
  delay_seconds: 62
  label: Leads
  mode: draft
backup:
  email_copy: true
  s3:
    bucket: backups
    region: eu-west-1
web:
  session_ttl: 30m
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o600))
	t.Setenv("GMERGE_LABEL", "Override")
	t.Setenv("GMERGE_S3_PATH_STYLE", "true")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Merge.DelaySeconds)
	assert.Equal(t, "Override", cfg.Merge.Label)
	assert.Equal(t, "draft", cfg.Merge.Mode)
	assert.True(t, cfg.Backup.EmailCopy)
	assert.True(t, cfg.S3Enabled())
	assert.True(t, cfg.Backup.S3.PathStyle)
	assert.Equal(t, "eu-west-1", cfg.Backup.S3.Region)
	assert.Equal(t, 30*time.Minute, cfg.Web.SessionTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("GMERGE_CLIENT_ID=from-dotenv\nGMERGE_LISTEN=:9999\n"), 0o600))
	t.Setenv("GMERGE_LISTEN", ":7777")
	// godotenv never overrides a variable that is present, even if empty
	require.NoError(t, os.Unsetenv("GMERGE_CLIENT_ID"))

	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Gmail.ClientID)
	assert.Equal(t, ":7777", cfg.Web.Listen)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestClampDelay(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want int }{
		{0, 30}, {-5, 30}, {29, 30}, {30, 30}, {31, 30}, {32, 30}, {33, 35},
		{62, 60}, {63, 65}, {297, 295}, {298, 300}, {300, 300}, {301, 300}, {1000, 300},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClampDelay(tc.in), "ClampDelay(%d)", tc.in)
	}
}
