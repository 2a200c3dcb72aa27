// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads optional search credentials from a directory of
// plain-text files. Each file holds one secret: the filename is the key name
// and the trimmed contents are the value.
//
// Recognized key files: semantic-scholar-api-key, openalex-email. The
// completion API key is read from OPENAI_API_KEY instead.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// Key file names.
const (
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.WithError(err).WithField("secret", name).Warn("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies recognized secrets into cfg. Values already set in cfg win.
func Apply(cfg *types.SearchConfig, secrets map[string]string) {
	if cfg.SemanticScholarAPIKey == "" {
		cfg.SemanticScholarAPIKey = secrets[SemanticScholarAPIKey]
	}
	if cfg.OpenAlexEmail == "" {
		cfg.OpenAlexEmail = secrets[OpenAlexEmail]
	}
}
