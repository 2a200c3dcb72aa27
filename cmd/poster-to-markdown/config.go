// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/poster-to-markdown/internal/secrets"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

const defaultUserAgent = "poster-to-markdown/0.1"

// setDefaults registers every configuration key so that environment
// variables reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.jpeg_quality", 90)

	v.SetDefault("completion.model", "gpt-4.1-mini")
	v.SetDefault("completion.timeout", 120*time.Second)
	v.SetDefault("completion.user_agent", defaultUserAgent)
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.max_tokens", 0)
	v.SetDefault("completion.detail", "high")

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.user_agent", defaultUserAgent)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.backends", []string{"arxiv"})
	v.SetDefault("search.categories", []string{})
	v.SetDefault("search.date_from", "")
	v.SetDefault("search.date_to", "")
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.inter_backend_delay", time.Second)

	v.SetDefault("prompt.tags", []string{})
	v.SetDefault("prompt.interests", "")
	v.SetDefault("prompt.extra", "")

	v.SetDefault("batch.output_dir", "")
	v.SetDefault("batch.skip_existing", false)
	v.SetDefault("batch.name_from_title", false)
	v.SetDefault("batch.delay", time.Duration(0))
}

// loadConfig builds the run configuration from v and the process
// environment. Credentials never come from the config file: the completion
// key is OPENAI_API_KEY and search credentials come from the environment or
// the secrets directory.
func loadConfig(v *viper.Viper, secretsDir string) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("parsing configuration: %w", err)
	}

	// An empty tag list from the defaults means "use the built-in vocabulary".
	if len(cfg.Prompt.Tags) == 0 {
		cfg.Prompt.Tags = nil
	}
	if v.IsSet("prompt.always_tags") {
		cfg.Prompt.AlwaysTags = v.GetStringSlice("prompt.always_tags")
	} else {
		cfg.Prompt.AlwaysTags = nil
	}

	cfg.Completion.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.Search.SemanticScholarAPIKey = strings.TrimSpace(os.Getenv("SEMANTIC_SCHOLAR_API_KEY"))
	cfg.Search.OpenAlexEmail = strings.TrimSpace(os.Getenv("OPENALEX_EMAIL"))

	s, err := secrets.Load(secretsDir)
	if err != nil {
		return types.Config{}, err
	}
	secrets.Apply(&cfg.Search, s)

	if cfg.Batch.OutputDir != "" {
		dir, err := expandHome(cfg.Batch.OutputDir)
		if err != nil {
			return types.Config{}, err
		}
		cfg.Batch.OutputDir = dir
	}
	return cfg, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
