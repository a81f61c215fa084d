package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-dl-go/internal/domain"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, domain.ResponseModeStream, config.Server.ResponseMode)
	assert.Equal(t, 10*time.Minute, config.Artifacts.Retention)
	assert.Equal(t, filepath.Join(os.TempDir(), "media-dl"), config.Download.RootDir)
	assert.NotContains(t, config.Logging.LogsDir, "$")
	assert.Equal(t, 4, config.Download.LimitFor(domain.PlatformYouTube))
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  response_mode: json
  public_base_url: https://dl.example.com/
  allowed_origins:
    - https://app.example.com
download:
  root_dir: /srv/media
  fetch_timeout: 15s
  concurrent_limit:
    youtube: 2
artifacts:
  retention: 30m
instagram:
  resolver_endpoint: https://resolver.example.com/api
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, domain.ResponseModeJSON, config.Server.ResponseMode)
	assert.Equal(t, "https://dl.example.com", config.Server.PublicBaseURL)
	assert.Equal(t, []string{"https://app.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, "/srv/media", config.Download.RootDir)
	assert.Equal(t, 15*time.Second, config.Download.FetchTimeout)
	assert.Equal(t, 2, config.Download.LimitFor(domain.PlatformYouTube))
	assert.Equal(t, 30*time.Minute, config.Artifacts.Retention)
	assert.Equal(t, "https://resolver.example.com/api", config.Instagram.ResolverEndpoint)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("MEDIADL_SERVER_PORT", "7070")
	t.Setenv("MEDIADL_ARTIFACTS_RETENTION", "5m")
	t.Setenv("MEDIADL_YOUTUBE_YTDLP_BINARY", "/opt/yt-dlp")

	config, err := LoadConfig(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 5*time.Minute, config.Artifacts.Retention)
	assert.Equal(t, "/opt/yt-dlp", config.YouTube.YTDLPBinary)
}

func TestLoadConfig_LegacyEnv(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	config, err := LoadConfig(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, config.Server.AllowedOrigins)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "server:\n  port: 70000\n"},
		{"response mode", "server:\n  response_mode: xml\n"},
		{"short retention", "artifacts:\n  retention: 10s\n"},
		{"long retention", "artifacts:\n  retention: 48h\n"},
		{"limit", "download:\n  concurrent_limit:\n    instagram: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("MEDIA_TEST_DIR", "/data")

	assert.Equal(t, "/data/media", expandPath("$MEDIA_TEST_DIR/media"))
	assert.Equal(t, filepath.Join(os.TempDir(), "x"), expandPath("$TMPDIR/x"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "media"), expandPath("~/media"))
}
