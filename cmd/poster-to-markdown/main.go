// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the poster-to-markdown CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/poster-to-markdown/internal/completion"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitAborted = 2
)

// errJobsFailed marks a run that completed with at least one failed poster.
var errJobsFailed = errors.New("some posters failed")

// rootCmd is the base command for the poster-to-markdown CLI.
var rootCmd = &cobra.Command{
	Use:   "poster-to-markdown",
	Short: "Summarize research poster images as markdown",
	Long: `poster-to-markdown sends images of research posters (PNG, JPEG, HEIC) to a
vision model and writes a structured markdown summary for each one. Related
papers found on arXiv, Semantic Scholar, or OpenAlex are appended when the
search succeeds.

Process one image with --file or every image in a folder with --directory.
OPENAI_API_KEY must be set in the environment or in a .env file.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(verbose)

		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("could not load .env")
		}
		return nil
	},
	RunE: runConvert,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./poster-to-markdown.yaml or ~/.config/poster-to-markdown/poster-to-markdown.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug details to stderr")

	f := rootCmd.Flags()
	f.StringP("file", "f", "", "poster image to process")
	f.StringP("directory", "d", "", "directory of poster images to process")
	f.StringP("output", "o", "", "output directory, or a .md file path with --file (default: next to each image)")
	f.String("model", "", "completion model (default gpt-4.1-mini)")
	f.Int("max-papers", 0, "maximum related papers per poster (default 10)")
	f.StringSlice("backends", nil, "search backends in order: arxiv, semantic_scholar, openalex")
	f.Bool("no-search", false, "skip the related-paper search")
	f.Bool("skip-existing", false, "skip posters whose markdown output already exists")
	f.Bool("name-from-title", false, "name output files from the poster content instead of the image name")
	f.Int("max-dimension", 0, "downscale images whose longest side exceeds this many pixels (default 2048, 0 keeps the config value)")
	f.Duration("delay", 0, "pause between consecutive posters")
	f.String("report", "", "write a run report to this path (.json or .yaml)")

	rootCmd.MarkFlagsMutuallyExclusive("file", "directory")
	rootCmd.MarkFlagsOneRequired("file", "directory")

	for key, flag := range map[string]string{
		"completion.model":      "model",
		"search.max_results":    "max-papers",
		"search.backends":       "backends",
		"batch.skip_existing":   "skip-existing",
		"batch.name_from_title": "name-from-title",
		"image.max_dimension":   "max-dimension",
		"batch.delay":           "delay",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
	setDefaults(viper.GetViper())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("poster-to-markdown")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "poster-to-markdown"))
		}
	}

	viper.SetEnvPrefix("POSTER_TO_MARKDOWN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("path", viper.ConfigFileUsed()).Debug("using config file")
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "warning: could not read config %s: %v\n", cfgFile, err)
	}
}

// setupLogging routes diagnostics to stderr. Progress lines go to stdout
// separately, so only warnings show unless verbose is set.
func setupLogging(verbose bool) {
	log.SetHandler(cli.New(os.Stderr))
	if verbose {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.WarnLevel)
}

// exitCode maps the error returned by the root command to a process exit code.
func exitCode(err error) int {
	var authErr *completion.AuthenticationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &authErr):
		return exitAborted
	default:
		return exitFailure
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}
