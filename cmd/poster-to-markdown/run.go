package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/poster-to-markdown/internal/batch"
	"github.com/pdiddy/poster-to-markdown/internal/completion"
	"github.com/pdiddy/poster-to-markdown/internal/imageload"
	"github.com/pdiddy/poster-to-markdown/internal/search"
	"github.com/pdiddy/poster-to-markdown/internal/secrets"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), secrets.DefaultDir)
	if err != nil {
		return err
	}
	if noSearch, _ := cmd.Flags().GetBool("no-search"); noSearch {
		cfg.Search.Enabled = false
	}

	file, _ := cmd.Flags().GetString("file")
	dir, _ := cmd.Flags().GetString("directory")
	output, _ := cmd.Flags().GetString("output")
	reportPath, _ := cmd.Flags().GetString("report")

	jobs, err := resolveJobs(file, dir, output, cfg.Batch.OutputDir)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if cfg.Completion.APIKey == "" {
		err := &completion.AuthenticationError{Message: "OPENAI_API_KEY is not set (export it or add it to .env)"}
		fmt.Fprintln(os.Stderr, "Error:", err)
		cmd.SilenceErrors = true
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintf(os.Stdout, "No files found in %s\n", dir)
		return nil
	}

	runner := &batch.Runner{
		Loader:    imageload.New(cfg.Image),
		Completer: completion.NewOpenAIClient(cfg.Completion, nil),
		Config:    cfg,
		Out:       os.Stdout,
	}
	if cfg.Search.Enabled {
		searcher, err := search.New(cfg.Search, &http.Client{Timeout: cfg.Search.Timeout})
		if err != nil {
			return err
		}
		runner.Searcher = searcher
	}

	log.WithFields(log.Fields{
		"posters": len(jobs),
		"model":   cfg.Completion.Model,
		"search":  cfg.Search.Enabled,
	}).Debug("starting")

	report, runErr := runner.Run(cmd.Context(), jobs)
	report.FormatSummary(os.Stdout)

	if reportPath != "" {
		path, err := expandHome(reportPath)
		if err == nil {
			err = report.Write(path)
		}
		if err != nil {
			log.WithError(err).Error("could not write report")
		} else {
			fmt.Fprintf(os.Stdout, "Report written to %s\n", path)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, report.Failed(), report.Total())
	}
	return nil
}

// resolveJobs turns the --file/--directory/--output flags into jobs. With
// --file, an output ending in .md names the file itself; any other output is
// a directory. configDir is the configured output directory used when
// --output is absent.
func resolveJobs(file, dir, output, configDir string) ([]*types.PosterJob, error) {
	var err error
	if output, err = expandHome(output); err != nil {
		return nil, err
	}
	if output == "" {
		output = configDir
	}

	switch {
	case file != "" && dir != "":
		return nil, errors.New("use either --file or --directory, not both")

	case file != "":
		if file, err = expandHome(file); err != nil {
			return nil, err
		}
		info, err := os.Stat(file)
		if err != nil {
			return nil, fmt.Errorf("poster file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory; use --directory", file)
		}
		if strings.EqualFold(filepath.Ext(output), ".md") {
			return []*types.PosterJob{{
				SourcePath: file,
				OutputPath: output,
				Status:     types.StatusPending,
			}}, nil
		}
		return batch.NewJobs([]string{file}, output), nil

	case dir != "":
		if dir, err = expandHome(dir); err != nil {
			return nil, err
		}
		paths, err := batch.Discover(dir)
		if err != nil {
			return nil, err
		}
		return batch.NewJobs(paths, output), nil

	default:
		return nil, errors.New("provide --file or --directory")
	}
}
