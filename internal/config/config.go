// Package config holds the settings of one book build and their defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/masahif/hondana/internal/chunker"
	"github.com/masahif/hondana/internal/spider"
	"github.com/masahif/hondana/internal/writer"
)

// MinRequestDelay is the smallest delay allowed between requests to a host
const MinRequestDelay = 100 * time.Millisecond

// BasicAuth contains HTTP Basic Authentication credentials
type BasicAuth struct {
	Username    string `mapstructure:"username" yaml:"username"`         // Username for basic auth
	Password    string `mapstructure:"password" yaml:"password"`         // Password for basic auth
	UsernameEnv string `mapstructure:"username_env" yaml:"username_env"` // Environment variable for username
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"` // Environment variable for password
}

// Auth contains authentication configuration
type Auth struct {
	Basic *BasicAuth `mapstructure:"basic" yaml:"basic"` // Basic authentication settings
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`     // debug, info, warn or error
	File    string `mapstructure:"file" yaml:"file"`       // JSON log file, empty for none
	Console bool   `mapstructure:"console" yaml:"console"` // Log to stderr
	Format  string `mapstructure:"format" yaml:"format"`   // Console format: text, logfmt or json
}

// BuildConfig holds the configuration of one build
type BuildConfig struct {
	// Root document: URL or local path
	Source  string   `mapstructure:"source" yaml:"source"`
	Formats []string `mapstructure:"formats" yaml:"formats"` // Output formats

	// Traversal
	MaxDepth          int      `mapstructure:"max_depth" yaml:"max_depth"` // 0 = unlimited
	IncludeURLs       []string `mapstructure:"include_urls" yaml:"include_urls"`
	ExcludeURLs       []string `mapstructure:"exclude_urls" yaml:"exclude_urls"`
	IncludeMediaTypes []string `mapstructure:"include_mediatypes" yaml:"include_mediatypes"`
	ExcludeMediaTypes []string `mapstructure:"exclude_mediatypes" yaml:"exclude_mediatypes"`

	// Output
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`
	OutputName     string   `mapstructure:"output_name" yaml:"output_name"` // Defaults to the book title
	Title          string   `mapstructure:"title" yaml:"title"`             // Overrides the root document title
	Author         string   `mapstructure:"author" yaml:"author"`
	Language       string   `mapstructure:"language" yaml:"language"`
	Cover          string   `mapstructure:"cover" yaml:"cover"` // Cover image URL or path
	GenerateCover  bool     `mapstructure:"generate_cover" yaml:"generate_cover"`
	MaxChunkSize   int      `mapstructure:"max_chunk_size" yaml:"max_chunk_size"` // Bytes per output file
	SplitSelectors []string `mapstructure:"split_selectors" yaml:"split_selectors"`

	// Fetching
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"`
	RespectRobots  bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	Headers        []string      `mapstructure:"headers" yaml:"headers"` // "Name: Value"
	Auth           *Auth         `mapstructure:"auth" yaml:"auth"`

	// Build manifest, empty to disable
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	Log      LogConfig `mapstructure:"log" yaml:"log"`
	Progress bool      `mapstructure:"progress" yaml:"progress"` // Show a spinner while fetching
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *BuildConfig {
	return &BuildConfig{
		Formats:        []string{"epub"},
		MaxDepth:       1,
		OutputDir:      ".",
		MaxChunkSize:   chunker.DefaultMaxChunkSize,
		UserAgent:      "hondana/1.0",
		RequestTimeout: 30 * time.Second,
		RequestDelay:   500 * time.Millisecond,
		RespectRobots:  true,
		Log: LogConfig{
			Level:   "info",
			Console: true,
			Format:  "text",
		},
	}
}

// Validate checks if the configuration is valid. A request delay below
// MinRequestDelay is raised to it.
func (c *BuildConfig) Validate() error {
	if len(c.Formats) == 0 {
		return ErrNoFormats
	}
	for _, format := range c.Formats {
		if _, err := writer.For(format); err != nil {
			return err
		}
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	if c.MaxChunkSize < 1024 {
		return ErrInvalidChunkSize
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < MinRequestDelay {
		c.RequestDelay = MinRequestDelay
	}

	if _, err := c.HeaderMap(); err != nil {
		return err
	}

	if _, err := spider.NewFilter(c.IncludeURLs, c.ExcludeURLs, c.IncludeMediaTypes, c.ExcludeMediaTypes); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	return nil
}

// HeaderMap parses the "Name: Value" headers
func (c *BuildConfig) HeaderMap() (map[string]string, error) {
	headers := make(map[string]string, len(c.Headers))
	for _, header := range c.Headers {
		colonIndex := strings.Index(header, ":")
		if colonIndex <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
		}

		key := strings.TrimSpace(header[:colonIndex])
		value := strings.TrimSpace(header[colonIndex+1:])
		if key == "" || value == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
		}
		headers[key] = value
	}
	return headers, nil
}

// GetBasicAuthCredentials returns the basic auth username and password,
// resolving environment variables if specified
func (c *BuildConfig) GetBasicAuthCredentials() (username, password string) {
	if c.Auth == nil || c.Auth.Basic == nil {
		return "", ""
	}

	basic := c.Auth.Basic

	if basic.UsernameEnv != "" {
		username = os.Getenv(basic.UsernameEnv)
	} else {
		username = basic.Username
	}

	if basic.PasswordEnv != "" {
		password = os.Getenv(basic.PasswordEnv)
	} else {
		password = basic.Password
	}

	return username, password
}
