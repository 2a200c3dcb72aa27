package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "poster-to-markdown/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ImageConfig holds settings for loading poster images.
type ImageConfig struct {
	// MaxDimension is the longest side, in pixels, an image may have before
	// it is downscaled. Zero disables downscaling.
	MaxDimension int `json:"max_dimension" yaml:"max_dimension" mapstructure:"max_dimension"`

	// JPEGQuality is the quality used when an image has to be re-encoded as JPEG.
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// AIConfig holds settings for the vision completion API.
type AIConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Model is the completion model identifier (e.g. "gpt-4.1-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the completion API.
	APIKey string `json:"-" yaml:"-" mapstructure:"-"`

	// BaseURL is the API root. Empty means the public OpenAI endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens caps the length of the generated summary. Zero leaves it to the provider.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// Detail is the image detail hint sent with the payload: low, high, or auto.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty" mapstructure:"detail"`
}

// SearchConfig holds settings for the related-paper search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Enabled turns the search stage on. When false every job is assembled
	// without a related-work section.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxResults is the maximum number of citations kept per poster (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Backends lists the providers to query in order: arxiv, semantic_scholar, openalex.
	Backends []string `json:"backends" yaml:"backends" mapstructure:"backends"`

	// Categories restricts arXiv results to these categories (e.g. "cs.RO").
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty" mapstructure:"categories"`

	// DateFrom and DateTo bound the publication date of citations (YYYY-MM-DD).
	DateFrom string `json:"date_from,omitempty" yaml:"date_from,omitempty" mapstructure:"date_from"`
	DateTo   string `json:"date_to,omitempty" yaml:"date_to,omitempty" mapstructure:"date_to"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"-" yaml:"-" mapstructure:"-"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"-" yaml:"-" mapstructure:"-"`

	// MaxRetries is the number of retries on HTTP 429; negative disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// InterBackendDelay is the delay between calls to different backends (default 1s).
	InterBackendDelay time.Duration `json:"inter_backend_delay" yaml:"inter_backend_delay" mapstructure:"inter_backend_delay"`
}

// PromptConfig holds optional overrides for the summary instruction.
type PromptConfig struct {
	// Tags is the vocabulary the model picks topic tags from.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty" mapstructure:"tags"`

	// AlwaysTags are added to every summary (e.g. "poster", "ICRA2025").
	AlwaysTags []string `json:"always_tags,omitempty" yaml:"always_tags,omitempty" mapstructure:"always_tags"`

	// Interests describes the reader's research so the model can add remarks
	// relating the poster back to it. Empty omits the remarks section.
	Interests string `json:"interests,omitempty" yaml:"interests,omitempty" mapstructure:"interests"`

	// Extra is appended verbatim to the instruction.
	Extra string `json:"extra,omitempty" yaml:"extra,omitempty" mapstructure:"extra"`
}

// BatchConfig holds settings for the batch orchestrator.
type BatchConfig struct {
	// OutputDir is where markdown files are written. Empty means next to each source image.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty" mapstructure:"output_dir"`

	// SkipExisting leaves posters alone whose markdown output already exists.
	SkipExisting bool `json:"skip_existing" yaml:"skip_existing" mapstructure:"skip_existing"`

	// NameFromTitle asks the model for a snake_case filename instead of
	// reusing the image basename.
	NameFromTitle bool `json:"name_from_title" yaml:"name_from_title" mapstructure:"name_from_title"`

	// Delay is the pause between consecutive jobs.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// Config groups all stage configurations. It is built once per invocation
// and shared read-only by every job.
type Config struct {
	Image      ImageConfig  `json:"image" yaml:"image" mapstructure:"image"`
	Completion AIConfig     `json:"completion" yaml:"completion" mapstructure:"completion"`
	Search     SearchConfig `json:"search" yaml:"search" mapstructure:"search"`
	Prompt     PromptConfig `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	Batch      BatchConfig  `json:"batch" yaml:"batch" mapstructure:"batch"`
}
