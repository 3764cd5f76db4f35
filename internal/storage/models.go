package storage

import "time"

// Build statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// BuildInfo is one row of the builds table
type BuildInfo struct {
	ID           string     `yaml:"id"`
	Source       string     `yaml:"source"`
	Status       string     `yaml:"status"`
	StartedAt    time.Time  `yaml:"started_at"`
	FinishedAt   *time.Time `yaml:"finished_at,omitempty"`
	ErrorMessage string     `yaml:"error_message,omitempty"`
}

// BuildSummary holds the per-build counts of the build_summary view
type BuildSummary struct {
	BuildInfo `yaml:",inline"`
	Resources int `yaml:"resources"`
	Redirects int `yaml:"redirects"`
	Errors    int `yaml:"errors"`
	Outputs   int `yaml:"outputs"`
}

// ResourceRecord is a parsed resource as recorded by the spider
type ResourceRecord struct {
	URL       string   `yaml:"url"`
	OrigURL   string   `yaml:"orig_url,omitempty"`
	MediaType string   `yaml:"media_type"`
	Relations []string `yaml:"relations,omitempty"`
	Referrer  string   `yaml:"referrer,omitempty"`
	Depth     int      `yaml:"depth"`
}

// ErrorRecord is a resource that could not be used
type ErrorRecord struct {
	URL          string    `yaml:"url"`
	ErrorType    string    `yaml:"error_type"`
	ErrorMessage string    `yaml:"error_message"`
	OccurredAt   time.Time `yaml:"occurred_at"`
}

// OutputRecord is a file produced by a writer
type OutputRecord struct {
	Format    string    `yaml:"format"`
	Path      string    `yaml:"path"`
	CreatedAt time.Time `yaml:"created_at"`
}
