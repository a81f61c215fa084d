package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourusername/media-dl-go/internal/domain"
)

const (
	minRetention = time.Minute
	maxRetention = 24 * time.Hour
)

// LoadConfig loads configuration from file and environment.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.media-dl")
	}

	v.SetEnvPrefix("MEDIADL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	// Plain names used by existing deployments
	_ = v.BindEnv("server.port", "MEDIADL_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.allowed_origins", "MEDIADL_SERVER_ALLOWED_ORIGINS", "CORS_ORIGINS")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.allowed_origins", c.Server.AllowedOrigins)
	v.SetDefault("server.response_mode", c.Server.ResponseMode)
	v.SetDefault("server.public_base_url", c.Server.PublicBaseURL)

	v.SetDefault("download.root_dir", c.Download.RootDir)
	v.SetDefault("download.file_prefix", c.Download.FilePrefix)
	v.SetDefault("download.fetch_timeout", c.Download.FetchTimeout)
	v.SetDefault("download.user_agent", c.Download.UserAgent)
	v.SetDefault("download.proxy_addr", c.Download.ProxyAddr)
	for p, n := range c.Download.ConcurrentLimit {
		v.SetDefault("download.concurrent_limit."+string(p), n)
	}

	v.SetDefault("artifacts.retention", c.Artifacts.Retention)
	v.SetDefault("artifacts.reap_interval", c.Artifacts.ReapInterval)

	v.SetDefault("youtube.ytdlp_binary", c.YouTube.YTDLPBinary)
	v.SetDefault("youtube.video_format", c.YouTube.VideoFormat)
	v.SetDefault("youtube.audio_format", c.YouTube.AudioFormat)
	v.SetDefault("youtube.relaxed_video_format", c.YouTube.RelaxedVideoFormat)
	v.SetDefault("youtube.relaxed_audio_format", c.YouTube.RelaxedAudioFormat)

	v.SetDefault("instagram.resolver_endpoint", c.Instagram.ResolverEndpoint)
	v.SetDefault("instagram.resolver_timeout", c.Instagram.ResolverTimeout)
	v.SetDefault("instagram.ytdlp_fallback", c.Instagram.YTDLPFallback)

	v.SetDefault("transcoder.ffmpeg_binary", c.Transcoder.FFmpegBinary)
	v.SetDefault("transcoder.ffprobe_binary", c.Transcoder.FFprobeBinary)
	v.SetDefault("transcoder.audio_codec", c.Transcoder.AudioCodec)
	v.SetDefault("transcoder.audio_bitrate", c.Transcoder.AudioBitrate)
	v.SetDefault("transcoder.sample_rate", c.Transcoder.SampleRate)
	v.SetDefault("transcoder.channels", c.Transcoder.Channels)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
	v.SetDefault("logging.logs_dir", c.Logging.LogsDir)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.RootDir = expandPath(config.Download.RootDir)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths.
// $TMPDIR resolves to the OS temp directory when unset.
func expandPath(path string) string {
	path = os.Expand(path, func(key string) string {
		if key == "TMPDIR" {
			return strings.TrimRight(os.TempDir(), string(filepath.Separator))
		}
		return os.Getenv(key)
	})

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return filepath.Clean(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Server.ResponseMode {
	case domain.ResponseModeStream, domain.ResponseModeJSON:
	default:
		return fmt.Errorf("invalid response mode %q (want %s or %s)",
			config.Server.ResponseMode, domain.ResponseModeStream, domain.ResponseModeJSON)
	}
	config.Server.PublicBaseURL = strings.TrimRight(config.Server.PublicBaseURL, "/")

	if config.Download.RootDir == "" || config.Download.RootDir == "." {
		return fmt.Errorf("download root directory not configured")
	}

	if config.Download.FilePrefix == "" {
		return fmt.Errorf("file prefix not configured")
	}

	for p, n := range config.Download.ConcurrentLimit {
		if n < 1 {
			return fmt.Errorf("concurrent limit for %s must be at least 1", p)
		}
	}

	if config.Artifacts.Retention < minRetention || config.Artifacts.Retention > maxRetention {
		return fmt.Errorf("artifact retention must be between %s and %s, got %s",
			minRetention, maxRetention, config.Artifacts.Retention)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}
