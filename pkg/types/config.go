package types

import "time"

// ServerConfig holds settings for the web UI server.
type ServerConfig struct {
	// Host is the listen host (default 127.0.0.1). Empty or 0.0.0.0 listens
	// on all interfaces.
	Host string `json:"host" yaml:"host" mapstructure:"host"`

	// Port is the HTTP listen port (default 7860).
	Port int `json:"port" yaml:"port" mapstructure:"port"`

	// AllowedOrigins enables CORS for the listed origins when non-empty.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// MaxUploadBytes caps the size of a multipart upload request.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ConversionBackend identifies the tool that turns inputs into Markdown.
type ConversionBackend string

const (
	BackendAuto      ConversionBackend = "auto"
	BackendContainer ConversionBackend = "container"
	BackendBinary    ConversionBackend = "binary"
	BackendNative    ConversionBackend = "native"
)

// ConversionConfig holds settings for the conversion backends.
type ConversionConfig struct {
	// Backend selects auto, container, binary, or native.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Image is the markitdown container image (default "markitdown:latest").
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// Binary is the markitdown executable name or path (default "markitdown").
	Binary string `json:"binary" yaml:"binary" mapstructure:"binary"`

	// NativeHTML routes .html inputs to the built-in HTML converter even when
	// markitdown is available.
	NativeHTML bool `json:"native_html" yaml:"native_html" mapstructure:"native_html"`

	// Timeout bounds a single conversion (default 2m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// FetchConfig holds HTTP settings for URL-mode conversion.
type FetchConfig struct {
	// Timeout is the HTTP request timeout (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with every download request.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxBytes caps the downloaded body size (default 50 MiB).
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`
}

// JobsConfig holds settings for the job manager.
type JobsConfig struct {
	// MaxBatches bounds how many batches convert at the same time (default 2).
	MaxBatches int `json:"max_batches" yaml:"max_batches" mapstructure:"max_batches"`

	// SessionTTL is how long an idle session's jobs are kept (default 1h).
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl" mapstructure:"session_ttl"`
}

// OutputConfig holds settings for the output writer.
type OutputConfig struct {
	// DefaultDir is the directory suggested in the save form.
	DefaultDir string `json:"default_dir" yaml:"default_dir" mapstructure:"default_dir"`

	// Frontmatter prepends YAML frontmatter to saved files.
	Frontmatter bool `json:"frontmatter" yaml:"frontmatter" mapstructure:"frontmatter"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json (default console).
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings of the application.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Jobs       JobsConfig       `json:"jobs" yaml:"jobs" mapstructure:"jobs"`
	Output     OutputConfig     `json:"output" yaml:"output" mapstructure:"output"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the built-in defaults. DefaultDir is left empty;
// callers resolve it against the user's home directory.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7860,
			MaxUploadBytes:  100 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Conversion: ConversionConfig{
			Backend: BackendAuto,
			Image:   "markitdown:latest",
			Binary:  "markitdown",
			Timeout: 2 * time.Minute,
		},
		Fetch: FetchConfig{
			Timeout:    30 * time.Second,
			UserAgent:  "markitdown-ui/0.1",
			MaxRetries: 3,
			MaxBytes:   50 << 20,
		},
		Jobs: JobsConfig{
			MaxBatches: 2,
			SessionTTL: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
