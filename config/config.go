package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credential environment variable names
const (
	EnvGroqKey             = "GROQ_API_KEY"
	EnvGeminiKey           = "GEMINI_API_KEY"
	EnvPexelsKey           = "PEXELS_API_KEY"
	EnvYouTubeClientID     = "YOUTUBE_CLIENT_ID"
	EnvYouTubeClientSecret = "YOUTUBE_CLIENT_SECRET"
	EnvYouTubeRefreshToken = "YOUTUBE_REFRESH_TOKEN"
)

// LLM providers understood by the planner
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Voice    VoiceConfig    `yaml:"voice"`
	Footage  FootageConfig  `yaml:"footage"`
	Render   RenderConfig   `yaml:"render"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Paths    PathsConfig    `yaml:"paths"`
	Upload   UploadConfig   `yaml:"upload"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Topics   TopicsConfig   `yaml:"topics"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`

	// Credentials never come from the YAML file.
	Credentials Credentials `yaml:"-"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

type VoiceConfig struct {
	Name string `yaml:"name"`
	// Command replaces edge-tts; it receives --text and --output.
	Command string `yaml:"command"`
}

type FootageConfig struct {
	BaseURL     string `yaml:"base_url"`
	PerPage     int    `yaml:"per_page"`
	Orientation string `yaml:"orientation"`
}

type RenderConfig struct {
	FPS          int     `yaml:"fps"`
	VideoCodec   string  `yaml:"video_codec"`
	AudioCodec   string  `yaml:"audio_codec"`
	Preset       string  `yaml:"preset"`
	Font         string  `yaml:"font"`
	FontFile     string  `yaml:"font_file"`
	FontSize     int     `yaml:"font_size"`
	FontColor    string  `yaml:"font_color"`
	StrokeColor  string  `yaml:"stroke_color"`
	StrokeWidth  int     `yaml:"stroke_width"`
	CaptionWidth float64 `yaml:"caption_width"`
	FFmpegPath   string  `yaml:"ffmpeg_path"`
	FFprobePath  string  `yaml:"ffprobe_path"`
}

// TimeoutsConfig bounds each stage; zero leaves a stage unbounded.
type TimeoutsConfig struct {
	Plan    time.Duration `yaml:"plan"`
	Narrate time.Duration `yaml:"narrate"`
	Locate  time.Duration `yaml:"locate"`
	Render  time.Duration `yaml:"render"`
}

type PathsConfig struct {
	Work   string `yaml:"work"`
	Output string `yaml:"output"`
}

type UploadConfig struct {
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`

	// SchedulePublish uploads public videos as private with a publishAt
	// time on the next of PublishDays at PublishHour in PublishTimezone.
	SchedulePublish bool     `yaml:"schedule_publish"`
	PublishDays     []string `yaml:"publish_days"`
	PublishHour     int      `yaml:"publish_hour"`
	PublishTimezone string   `yaml:"publish_timezone"`
	ExtraTags       []string `yaml:"extra_tags"`
}

type ScheduleConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Topics  []string `yaml:"topics"`
	Upload  bool     `yaml:"upload"`
}

type TopicsConfig struct {
	Subreddit string `yaml:"subreddit"`
	Window    string `yaml:"window"`
	Limit     int    `yaml:"limit"`
	MinScore  int    `yaml:"min_score"`
	UserAgent string `yaml:"user_agent"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	HistorySize int    `yaml:"history_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Credentials holds API keys read from the environment
type Credentials struct {
	GroqAPIKey          string
	GeminiAPIKey        string
	PexelsAPIKey        string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
}

// MissingCredentialError is returned when a required API key is absent
type MissingCredentialError struct {
	Key string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential %s (set it in the environment or .env)", e.Key)
}

// Default returns a Config with every field set to its built-in value
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderGroq,
			Model:       "llama-3.3-70b-versatile",
			BaseURL:     "https://api.groq.com/openai/v1/",
			Temperature: 0.7,
		},
		Voice: VoiceConfig{Name: "en-US-ChristopherNeural"},
		Footage: FootageConfig{
			BaseURL:     "https://api.pexels.com",
			PerPage:     5,
			Orientation: "portrait",
		},
		Render: RenderConfig{
			FPS:          24,
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			Preset:       "fast",
			Font:         "Helvetica-Bold",
			FontSize:     60,
			FontColor:    "white",
			StrokeColor:  "black",
			StrokeWidth:  2,
			CaptionWidth: 0.9,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
		},
		Paths: PathsConfig{Work: ".", Output: "."},
		Upload: UploadConfig{
			Visibility:      "private",
			CategoryID:      "27",
			DefaultLanguage: "en",
			PublishDays:     []string{"tuesday", "friday"},
			PublishHour:     14,
			PublishTimezone: "America/New_York",
		},
		Schedule: ScheduleConfig{Cron: "0 14 * * 2,5"},
		Topics: TopicsConfig{
			Subreddit: "todayilearned",
			Window:    "day",
			Limit:     10,
			MinScore:  100,
			UserAgent: "autotok/1.0",
		},
		Server: ServerConfig{Port: "8080", HistorySize: 50},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error. Credentials and log/port overrides are then taken from the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadEnv loads .env files into the process environment. With no paths,
// ".env" is used. Callers usually ignore the error when the file is absent.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

func (c *Config) applyEnv() {
	c.Credentials = Credentials{
		GroqAPIKey:          os.Getenv(EnvGroqKey),
		GeminiAPIKey:        os.Getenv(EnvGeminiKey),
		PexelsAPIKey:        os.Getenv(EnvPexelsKey),
		YouTubeClientID:     os.Getenv(EnvYouTubeClientID),
		YouTubeClientSecret: os.Getenv(EnvYouTubeClientSecret),
		YouTubeRefreshToken: os.Getenv(EnvYouTubeRefreshToken),
	}
	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("LOG_FORMAT", c.Log.Format)
	c.Server.Port = GetEnv("PORT", c.Server.Port)
	c.Server.HistorySize = GetEnvInt("HISTORY_SIZE", c.Server.HistorySize)
	c.Topics.UserAgent = GetEnv("REDDIT_USER_AGENT", c.Topics.UserAgent)
}

// Validate checks that everything the pipeline needs before its first
// stage is present.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGroq, "":
		if c.Credentials.GroqAPIKey == "" {
			return &MissingCredentialError{Key: EnvGroqKey}
		}
	case ProviderGemini:
		if c.Credentials.GeminiAPIKey == "" {
			return &MissingCredentialError{Key: EnvGeminiKey}
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Credentials.PexelsAPIKey == "" {
		return &MissingCredentialError{Key: EnvPexelsKey}
	}
	if c.Render.FPS <= 0 {
		return fmt.Errorf("render.fps must be positive, got %d", c.Render.FPS)
	}
	if c.Render.CaptionWidth <= 0 || c.Render.CaptionWidth > 1 {
		return fmt.Errorf("render.caption_width must be in (0,1], got %g", c.Render.CaptionWidth)
	}
	return nil
}

// ValidateUpload checks the YouTube OAuth credentials
func (c *Config) ValidateUpload() error {
	required := []struct{ key, value string }{
		{EnvYouTubeClientID, c.Credentials.YouTubeClientID},
		{EnvYouTubeClientSecret, c.Credentials.YouTubeClientSecret},
		{EnvYouTubeRefreshToken, c.Credentials.YouTubeRefreshToken},
	}
	for _, r := range required {
		if r.value == "" {
			return &MissingCredentialError{Key: r.key}
		}
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
