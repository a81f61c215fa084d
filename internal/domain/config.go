package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Download   DownloadConfig   `mapstructure:"download"`
	Artifacts  ArtifactConfig   `mapstructure:"artifacts"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Instagram  InstagramConfig  `mapstructure:"instagram"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Response modes for POST /api/download/:platform
const (
	ResponseModeStream = "stream" // newline-delimited progress events
	ResponseModeJSON   = "json"   // single summary object
)

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ResponseMode   string   `mapstructure:"response_mode"`
	PublicBaseURL  string   `mapstructure:"public_base_url"` // prefix for downloadUrl, empty for relative links
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	RootDir         string           `mapstructure:"root_dir"`
	FilePrefix      string           `mapstructure:"file_prefix"`
	FetchTimeout    time.Duration    `mapstructure:"fetch_timeout"`
	UserAgent       string           `mapstructure:"user_agent"`
	ProxyAddr       string           `mapstructure:"proxy_addr"` // SOCKS5 host:port, empty for direct
	ConcurrentLimit map[Platform]int `mapstructure:"concurrent_limit"`
}

// LimitFor returns the concurrent job limit for a platform
func (c DownloadConfig) LimitFor(p Platform) int {
	if n, ok := c.ConcurrentLimit[p]; ok && n > 0 {
		return n
	}
	return 1
}

// ArtifactConfig controls how long finished files wait for retrieval
type ArtifactConfig struct {
	Retention    time.Duration `mapstructure:"retention"`
	ReapInterval string        `mapstructure:"reap_interval"` // cron schedule, e.g. "@every 1m"
}

// YouTubeConfig contains yt-dlp settings for YouTube
type YouTubeConfig struct {
	YTDLPBinary        string `mapstructure:"ytdlp_binary"`
	VideoFormat        string `mapstructure:"video_format"`
	AudioFormat        string `mapstructure:"audio_format"`
	RelaxedVideoFormat string `mapstructure:"relaxed_video_format"`
	RelaxedAudioFormat string `mapstructure:"relaxed_audio_format"`
}

// InstagramConfig contains Instagram resolution settings
type InstagramConfig struct {
	ResolverEndpoint string        `mapstructure:"resolver_endpoint"` // returns {"url_list": [...]}
	ResolverTimeout  time.Duration `mapstructure:"resolver_timeout"`
	YTDLPFallback    bool          `mapstructure:"ytdlp_fallback"`
}

// TranscoderConfig contains ffmpeg settings
type TranscoderConfig struct {
	FFmpegBinary  string `mapstructure:"ffmpeg_binary"`
	FFprobeBinary string `mapstructure:"ffprobe_binary"`
	AudioCodec    string `mapstructure:"audio_codec"`
	AudioBitrate  string `mapstructure:"audio_bitrate"`
	SampleRate    int    `mapstructure:"sample_rate"`
	Channels      int    `mapstructure:"channels"`
}

// AudioTarget returns the encoder settings for audio artifacts
func (c TranscoderConfig) AudioTarget() AudioTarget {
	return AudioTarget{
		Codec:      c.AudioCodec,
		Bitrate:    c.AudioBitrate,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	}
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category and process logs
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
			ResponseMode:   ResponseModeStream,
		},
		Download: DownloadConfig{
			RootDir:      "$TMPDIR/media-dl",
			FilePrefix:   "media",
			FetchTimeout: 60 * time.Second,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			ConcurrentLimit: map[Platform]int{
				PlatformYouTube:   4,
				PlatformInstagram: 4,
			},
		},
		Artifacts: ArtifactConfig{
			Retention:    10 * time.Minute,
			ReapInterval: "@every 1m",
		},
		YouTube: YouTubeConfig{
			YTDLPBinary:        "yt-dlp",
			VideoFormat:        "best[ext=mp4]/best",
			AudioFormat:        "bestaudio[ext=m4a]/bestaudio",
			RelaxedVideoFormat: "best",
			RelaxedAudioFormat: "bestaudio/best",
		},
		Instagram: InstagramConfig{
			ResolverEndpoint: "",
			ResolverTimeout:  20 * time.Second,
			YTDLPFallback:    true,
		},
		Transcoder: TranscoderConfig{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			AudioCodec:    "libmp3lame",
			AudioBitrate:  "320k",
			SampleRate:    48000,
			Channels:      2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$TMPDIR/media-dl-logs",
		},
	}
}
