// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch discovers poster images and drives each one through the
// load, summarize, search, and assemble stages, recording per-job outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/pdiddy/poster-to-markdown/internal/assemble"
	"github.com/pdiddy/poster-to-markdown/internal/completion"
	"github.com/pdiddy/poster-to-markdown/internal/imageload"
	"github.com/pdiddy/poster-to-markdown/internal/prompt"
	"github.com/pdiddy/poster-to-markdown/internal/search"
	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// ErrAborted is returned by Run when the batch stopped before every job was
// attempted. The remaining jobs stay pending.
var ErrAborted = errors.New("batch aborted")

// ImageLoader loads one poster image into an API payload.
type ImageLoader interface {
	Load(path string) (imageload.Payload, error)
}

// RelatedSearcher finds related papers. It never fails; a failed search
// comes back as a degraded RelatedWork.
type RelatedSearcher interface {
	Related(ctx context.Context, q search.Query) types.RelatedWork
}

// Discover lists the files in dir, sorted by name. Subdirectories, dotfiles,
// and markdown files are left out. Files with unsupported extensions are
// included so that they are reported as failures.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.EqualFold(filepath.Ext(name), ".md") {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path) // follows symlinks
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// NewJobs creates one pending job per path. Output goes to
// <outputDir>/<basename>.md; an empty outputDir writes next to each image.
// Images sharing a basename (a.png and a.jpg) get a_2.md, a_3.md, ... in
// path order so that no two jobs write the same file.
func NewJobs(paths []string, outputDir string) []*types.PosterJob {
	jobs := make([]*types.PosterJob, 0, len(paths))
	claimed := make(map[string]bool, len(paths))
	for _, p := range paths {
		dir := outputDir
		if dir == "" {
			dir = filepath.Dir(p)
		}
		out := filepath.Join(dir, stem(p)+".md")
		if claimed[pathKey(out)] {
			out = nextFree(out, func(c string) bool { return claimed[pathKey(c)] })
		}
		claimed[pathKey(out)] = true
		jobs = append(jobs, &types.PosterJob{
			SourcePath: p,
			OutputPath: out,
			Status:     types.StatusPending,
		})
	}
	return jobs
}

// pathKey folds case so that a.md and A.md collide, as they do on the
// default macOS and Windows file systems.
func pathKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Runner processes jobs sequentially. Searcher may be nil, in which case no
// related-work section is produced.
type Runner struct {
	Loader    ImageLoader
	Completer completion.Client
	Searcher  RelatedSearcher
	Config    types.Config

	// Out receives one progress line per job. Nil discards them.
	Out io.Writer

	now func() time.Time

	// claimed holds the output paths owned by jobs of the current run.
	claimed map[string]bool

	// sources maps an output directory to the summaries already in it,
	// keyed by the image name recorded in their front matter.
	sources map[string]map[string]string
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run processes jobs in order and returns the report. Per-job failures are
// recorded on the job and never stop the batch. An authentication failure
// or a cancelled context stops it: Run returns an error wrapping ErrAborted
// and the cause, and the jobs not yet attempted stay pending.
func (r *Runner) Run(ctx context.Context, jobs []*types.PosterJob) (Report, error) {
	w := r.Out
	if w == nil {
		w = io.Discard
	}

	report := Report{
		RunID:   uuid.NewString(),
		Started: r.clock(),
		Jobs:    jobs,
	}
	logger := log.WithField("run", report.RunID)
	logger.WithField("jobs", len(jobs)).Info("batch started")

	r.claimed = make(map[string]bool, len(jobs))
	for _, job := range jobs {
		r.claimed[pathKey(job.OutputPath)] = true
	}
	r.sources = make(map[string]map[string]string)

	var abortErr error
	for i, job := range jobs {
		if i > 0 && r.Config.Batch.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.Config.Batch.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			abortErr = err
			break
		}

		err := r.runJob(ctx, job)
		switch job.Status {
		case types.StatusSuccess:
			fmt.Fprintf(w, "ok:      %s -> %s\n", filepath.Base(job.SourcePath), job.OutputPath)
			if job.SearchNote != "" {
				fmt.Fprintf(w, "  warning: related work omitted: %s\n", job.SearchNote)
			}
		case types.StatusSkipped:
			fmt.Fprintf(w, "skipped: %s (%s exists)\n", filepath.Base(job.SourcePath), job.OutputPath)
		case types.StatusFailed:
			fmt.Fprintf(w, "failed:  %s (%s: %s)\n", filepath.Base(job.SourcePath), job.ErrorKind, job.Error)
		}

		var authErr *completion.AuthenticationError
		if errors.As(err, &authErr) {
			abortErr = err
			break
		}
	}

	report.Finished = r.clock()
	if abortErr != nil {
		report.Aborted = true
		report.AbortReason = abortErr.Error()
		logger.WithError(abortErr).WithField("pending", report.Pending()).Error("batch aborted")
		return report, fmt.Errorf("%w: %w", ErrAborted, abortErr)
	}

	logger.WithFields(log.Fields{
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
		"skipped":   report.Skipped(),
	}).Info("batch finished")
	return report, nil
}

// runJob moves one job through its stages. It returns the error that
// failed the job, or nil.
func (r *Runner) runJob(ctx context.Context, job *types.PosterJob) error {
	job.Started = r.clock()
	defer func() { job.Finished = r.clock() }()

	logger := log.WithField("file", filepath.Base(job.SourcePath))

	if r.Config.Batch.SkipExisting {
		if existing, ok := r.existingOutput(job); ok {
			job.OutputPath = existing
			job.Status = types.StatusSkipped
			logger.WithField("output", existing).Debug("output exists, skipping")
			return nil
		}
	}

	job.Status = types.StatusLoading
	payload, err := r.Loader.Load(job.SourcePath)
	if err != nil {
		return r.fail(job, err)
	}

	job.Status = types.StatusSummarizing
	instruction, err := prompt.Build(prompt.Options{
		PromptConfig: r.Config.Prompt,
		Source:       filepath.Base(job.SourcePath),
	})
	if err != nil {
		return r.fail(job, err)
	}
	summary, err := r.Completer.Summarize(ctx, types.PromptContext{
		ImageBase64: payload.Data,
		MIME:        payload.MIME,
		Instruction: instruction,
	})
	if err != nil {
		return r.fail(job, err)
	}
	job.Title = assemble.Parse(summary).Title

	if r.Config.Batch.NameFromTitle {
		r.renameFromSummary(ctx, job, summary)
	}

	job.Status = types.StatusSearching
	var rw types.RelatedWork
	if r.Searcher != nil {
		rw = r.Searcher.Related(ctx, search.TermsFromSummary(summary))
		if rw.Degraded() {
			job.SearchNote = rw.Unavailable
		}
	}

	job.Status = types.StatusAssembling
	doc := assemble.Document(summary, rw, assemble.Options{
		Tags:          r.alwaysTags(),
		Source:        filepath.Base(job.SourcePath),
		FallbackTitle: stem(job.SourcePath),
	})
	if err := writeFileAtomic(job.OutputPath, []byte(doc)); err != nil {
		return r.fail(job, &WriteError{Path: job.OutputPath, Err: err})
	}
	r.recordSource(job)

	job.RelatedWork = rw.Available()
	job.Status = types.StatusSuccess
	logger.WithFields(log.Fields{
		"output":       job.OutputPath,
		"related_work": job.RelatedWork,
	}).Debug("poster summarized")
	return nil
}

// renameFromSummary asks the model for a filename and moves the job's
// output there. Any failure keeps the basename-derived path.
func (r *Runner) renameFromSummary(ctx context.Context, job *types.PosterJob, summary string) {
	logger := log.WithField("file", filepath.Base(job.SourcePath))

	suggested, err := r.Completer.SuggestName(ctx, summary)
	if err != nil {
		logger.WithError(err).Warn("filename suggestion failed, keeping image name")
		return
	}
	name := assemble.Filename(suggested)
	if name == "" {
		logger.WithField("suggested", suggested).Warn("unusable filename suggestion, keeping image name")
		return
	}
	delete(r.claimed, pathKey(job.OutputPath))
	job.OutputPath = r.uniquePath(filepath.Join(filepath.Dir(job.OutputPath), name))
	r.claimed[pathKey(job.OutputPath)] = true
}

// uniquePath returns path, or path with _2, _3, ... before the extension,
// avoiding both files on disk and outputs claimed by other jobs in the run.
func (r *Runner) uniquePath(path string) string {
	taken := func(p string) bool {
		if r.claimed[pathKey(p)] {
			return true
		}
		_, err := os.Stat(p)
		return !os.IsNotExist(err)
	}
	if !taken(path) {
		return path
	}
	return nextFree(path, taken)
}

// nextFree returns the first of path_2, path_3, ... (suffix before the
// extension) for which taken is false.
func nextFree(path string, taken func(string) bool) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// existingOutput finds a summary already written for job: the job's own
// output path, or a markdown file in the output directory whose front
// matter names the same source image. The second case covers outputs
// renamed from the poster title.
func (r *Runner) existingOutput(job *types.PosterJob) (string, bool) {
	if _, err := os.Stat(job.OutputPath); err == nil {
		return job.OutputPath, true
	}
	path, ok := r.sourceIndex(filepath.Dir(job.OutputPath))[filepath.Base(job.SourcePath)]
	return path, ok
}

// sourceIndex scans dir once per run for markdown files carrying a
// source key in their front matter.
func (r *Runner) sourceIndex(dir string) map[string]string {
	if idx, ok := r.sources[dir]; ok {
		return idx
	}
	idx := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("dir", dir).Warn("could not scan for existing summaries")
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if src := assemble.SourceOf(string(data)); src != "" {
			if _, dup := idx[src]; !dup {
				idx[src] = path
			}
		}
	}
	r.sources[dir] = idx
	return idx
}

// recordSource adds a freshly written output to the source index.
func (r *Runner) recordSource(job *types.PosterJob) {
	idx, ok := r.sources[filepath.Dir(job.OutputPath)]
	if !ok {
		return
	}
	src := filepath.Base(job.SourcePath)
	if _, dup := idx[src]; !dup {
		idx[src] = job.OutputPath
	}
}

func (r *Runner) alwaysTags() []string {
	if r.Config.Prompt.AlwaysTags == nil {
		return prompt.DefaultAlwaysTags
	}
	return r.Config.Prompt.AlwaysTags
}

// fail records err on the job and returns it.
func (r *Runner) fail(job *types.PosterJob, err error) error {
	job.FailedStage = job.Status
	job.Status = types.StatusFailed
	job.ErrorKind = ErrorKind(err)
	job.Error = err.Error()
	log.WithError(err).WithFields(log.Fields{
		"file":  filepath.Base(job.SourcePath),
		"stage": job.FailedStage,
		"kind":  job.ErrorKind,
	}).Warn("job failed")
	return err
}

// writeFileAtomic writes data to a temporary file in the destination
// directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".poster-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
