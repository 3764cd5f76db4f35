package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/masahif/hondana/internal/book"
	"github.com/masahif/hondana/internal/chunker"
	"github.com/masahif/hondana/internal/config"
	"github.com/masahif/hondana/internal/logging"
)

// ErrNoSource is returned when build is run without a URL or path
var ErrNoSource = errors.New("no source URL or path given")

func (a *app) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <url|path>",
		Short: "Build e-books from a web page or local document",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runBuild,
	}

	flags := cmd.Flags()
	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Output flags
	flags.StringSliceP("make", "m", []string{"epub"}, "Output format: epub, epub3, epub2, html, txt or pdf (repeatable)")
	flags.StringP("output-dir", "o", ".", "Directory for the output files")
	flags.String("output-name", "", "Output file name without extension (default is the book title)")
	flags.String("title", "", "Book title (default is the root document title)")
	flags.String("author", "", "Book author (default is the root document author)")
	flags.String("language", "", "Book language code")
	flags.String("cover", "", "Cover image URL or path")
	flags.Bool("generate-cover", false, "Draw a cover from title and author when there is none")
	flags.Int("max-chunk-size", chunker.DefaultMaxChunkSize, "Maximum size in bytes of one output document")
	flags.StringSlice("split", []string{}, "Always split before elements matching tag or tag.class")

	// Traversal flags
	flags.Int("max-depth", 1, "Follow document links this deep (0=unlimited)")
	flags.StringSlice("include", []string{}, "Glob patterns for URLs to include (default is the root directory)")
	flags.StringSlice("exclude", []string{}, "Glob patterns for URLs to exclude")
	flags.StringSlice("include-mediatype", []string{}, "Glob patterns for media types to include")
	flags.StringSlice("exclude-mediatype", []string{}, "Glob patterns for media types to exclude")

	// Fetching flags
	flags.DurationP("delay", "r", 500*time.Millisecond, "Delay between requests to one host")
	flags.DurationP("timeout", "t", 30*time.Second, "HTTP request timeout")
	flags.StringP("user-agent", "u", "hondana/1.0", "HTTP User-Agent header")
	flags.Bool("respect-robots", true, "Obey robots.txt rules")
	flags.StringSliceP("header", "H", []string{}, "Custom HTTP headers in 'Name: Value' format (use multiple times for multiple headers)")
	flags.String("auth-username", "", "Username for basic authentication")
	flags.String("auth-password", "", "Password for basic authentication")

	// Manifest, logging and progress flags
	flags.StringP("database", "d", "", "Record the build in this SQLite manifest")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.String("log-format", "text", "Console log format: text, logfmt or json")
	flags.Bool("progress", false, "Show a spinner while fetching")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"formats", "make"},
		{"output_dir", "output-dir"},
		{"output_name", "output-name"},
		{"title", "title"},
		{"author", "author"},
		{"language", "language"},
		{"cover", "cover"},
		{"generate_cover", "generate-cover"},
		{"max_chunk_size", "max-chunk-size"},
		{"split_selectors", "split"},
		{"max_depth", "max-depth"},
		{"include_urls", "include"},
		{"exclude_urls", "exclude"},
		{"include_mediatypes", "include-mediatype"},
		{"exclude_mediatypes", "exclude-mediatype"},
		{"request_delay", "delay"},
		{"request_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"respect_robots", "respect-robots"},
		{"headers", "header"},
		{"auth.basic.username", "auth-username"},
		{"auth.basic.password", "auth-password"},
		{"database_path", "database"},
		{"log.level", "log-level"},
		{"log.file", "log-file"},
		{"log.format", "log-format"},
		{"progress", "progress"},
	}

	for _, bind := range bindFlags {
		if err := a.v.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
	a.v.SetDefault("log.console", true)

	return cmd
}

// loadConfig merges defaults, config file, environment and flags
func (a *app) loadConfig(cmd *cobra.Command, args []string) (*config.BuildConfig, error) {
	cfg := config.DefaultConfig()
	if err := a.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) > 0 {
		cfg.Source = args[0]
	}

	// Update User-Agent with dynamic version if not explicitly set
	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == "hondana/1.0" {
		cfg.UserAgent = generateUserAgent()
	}
	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.BuildConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current hondana configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./hondana.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: HONDANA_\n\n")
	fmt.Fprint(w, string(yamlData))
	return nil
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := a.loadConfig(cmd, args)
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if cfg.Source == "" {
		return fmt.Errorf("%w\nUsage: %s", ErrNoSource, cmd.UseLine())
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.SetDefault(logging.Config{
		Level:         logging.ParseLevel(cfg.Log.Level),
		FilePath:      cfg.Log.File,
		MaxSize:       logging.DefaultConfig().MaxSize,
		MaxBackups:    logging.DefaultConfig().MaxBackups,
		Console:       cfg.Log.Console,
		ConsoleFormat: cfg.Log.Format,
		ConsoleWriter: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = closer.Close() }()

	if cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Building with configuration:\n")
	fmt.Fprintf(out, "  Source: %s\n", cfg.Source)
	fmt.Fprintf(out, "  Formats: %v\n", cfg.Formats)
	fmt.Fprintf(out, "  Max Depth: %d\n", cfg.MaxDepth)
	fmt.Fprintf(out, "  Output Dir: %s\n", cfg.OutputDir)
	if cfg.DatabasePath != "" {
		fmt.Fprintf(out, "  Database: %s\n", cfg.DatabasePath)
	}
	if username, password := cfg.GetBasicAuthCredentials(); username != "" && password != "" {
		fmt.Fprintf(out, "  Authentication: Basic (username: %s)\n", username)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts book.Options
	if cfg.Progress {
		s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = " Fetching..."
		s.Start()
		defer s.Stop()
		opts.Progress = func(parsed, queued int) {
			s.Lock()
			s.Suffix = fmt.Sprintf(" Fetched %d resources, %d queued", parsed, queued)
			s.Unlock()
		}
	}

	result, err := book.Build(ctx, cfg, opts)
	if result != nil {
		printResult(out, result)
	}
	return err
}

func printResult(w io.Writer, result *book.Result) {
	fmt.Fprintf(w, "\nBuilt %q from %d resources in %s\n", result.Title, result.Resources, result.Elapsed.Round(time.Millisecond))
	if result.BuildID != "" {
		fmt.Fprintf(w, "  Build ID: %s\n", result.BuildID)
	}
	formats := make([]string, 0, len(result.Outputs))
	for format := range result.Outputs {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	for _, format := range formats {
		fmt.Fprintf(w, "  %s: %s\n", format, result.Outputs[format])
	}
}
