// Package batch runs the rewrite driver over a set of source files in
// parallel, rescanning the codebase when rules ask for cross-file cascades.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/src-d/enry/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// DefaultMaxRounds bounds the codebase rescans of one run.
const DefaultMaxRounds = 8

const tracerName = "prune"

// Recorder observes the final result of every processed file.
type Recorder interface {
	RecordFile(ctx context.Context, res *rewrite.FileResult)
}

// Options configures a Runner.
type Options struct {
	// Workers bounds the files rewritten concurrently; runtime.NumCPU() when zero.
	Workers int
	// MaxRounds bounds the codebase rescans; DefaultMaxRounds when zero.
	MaxRounds int
	// DryRun computes results without touching the files.
	DryRun bool
	// DeleteEmptyFiles removes files whose rewritten text is blank.
	DeleteEmptyFiles bool
	// GrepHeuristic skips files that contain none of the seed values.
	GrepHeuristic bool

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Recorder Recorder
}

// Failure is a file that could not be rewritten.
type Failure struct {
	Path string
	Err  error
}

// Summary aggregates the outcome of one run.
type Summary struct {
	RunID     string
	Processed int
	Succeeded int
	Failed    int
	Changed   int
	Skipped   int
	Deleted   int
	Rounds    int
	Failures  []Failure
	// Files holds the merged result of every processed file, sorted by path.
	Files    []*rewrite.FileResult
	Duration time.Duration
}

// OK reports whether every processed file succeeded.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Runner applies one driver to many files.
type Runner struct {
	driver *rewrite.Driver
	lang   *syntax.Language
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRunner creates a runner for files of lang.
func NewRunner(driver *rewrite.Driver, lang *syntax.Language, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}

	r := &Runner{driver: driver, lang: lang, opts: opts, logger: opts.Logger, tracer: opts.Tracer}

	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}

	return r
}

// file is the state of one source file across rounds.
type file struct {
	path     string
	original []byte
	text     []byte
	result   *rewrite.FileResult
}

func (f *file) failed() bool {
	return f.result != nil && f.result.Status == rewrite.StatusFailed
}

func (f *file) relevant(terms [][]byte) bool {
	if len(terms) == 0 {
		return true
	}

	for _, term := range terms {
		if bytes.Contains(f.text, term) {
			return true
		}
	}

	return false
}

// absorb folds the result of one round into the file's running result.
func (f *file) absorb(res *rewrite.FileResult) {
	f.text = res.Output

	if f.result == nil {
		f.result = res

		return
	}

	f.result.Status = res.Status
	f.result.Err = res.Err
	f.result.AppliedRules = append(f.result.AppliedRules, res.AppliedRules...)
	f.result.Steps += res.Steps
	f.result.Duration += res.Duration
	f.result.GlobalSeeds = append(f.result.GlobalSeeds, res.GlobalSeeds...)
	f.result.Output = res.Output
	f.result.Changed = !bytes.Equal(f.original, res.Output)
}

// Run rewrites the files found under paths, seeded with subs. File-scoped
// failures are reported in the summary; an error is returned only when the
// inputs cannot be discovered or ctx is done.
func (r *Runner) Run(ctx context.Context, paths []string, subs rule.Substitutions) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", summary.RunID)

	ctx, span := r.tracer.Start(ctx, "prune.batch",
		trace.WithAttributes(
			attribute.String("prune.run_id", summary.RunID),
			attribute.String("prune.language", r.lang.Name),
		))
	defer span.End()

	found, err := Discover(paths, r.lang)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "discovered files", "count", len(found), "language", r.lang.Name)

	files := r.load(found)
	seeds := r.driver.Seeds(subs)
	done := make(map[string]bool)

	for round := 1; len(seeds) > 0; round++ {
		if round > r.opts.MaxRounds {
			logger.WarnContext(ctx, "round limit reached", "limit", r.opts.MaxRounds, "pending_seeds", len(seeds))

			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", summary.RunID, ctxErr)
		}

		summary.Rounds = round

		var next []rewrite.Seed

		for _, g := range r.round(ctx, round, files, seeds) {
			if key := g.Key(); !done[key] {
				done[key] = true
				next = append(next, rewrite.Seed(g))
			}
		}

		seeds = next
	}

	for _, f := range files {
		r.finish(ctx, f, summary)
	}

	summary.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("prune.files.processed", summary.Processed),
		attribute.Int("prune.files.failed", summary.Failed),
		attribute.Int("prune.rounds", summary.Rounds),
	)

	logger.InfoContext(ctx, "run finished",
		"processed", summary.Processed,
		"changed", summary.Changed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"rounds", summary.Rounds,
		"duration", summary.Duration,
	)

	return summary, nil
}

// load reads every file up front. Unreadable files fail immediately.
func (r *Runner) load(paths []string) []*file {
	files := make([]*file, 0, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			files = append(files, &file{path: path, result: &rewrite.FileResult{
				Path: path, Status: rewrite.StatusFailed, Err: fmt.Errorf("read %s: %w", path, err),
			}})

			continue
		}

		if enry.IsBinary(data) {
			r.logger.Debug("skipping binary file", "path", path)

			continue
		}

		files = append(files, &file{path: path, original: data, text: data})
	}

	return files
}

// round rewrites every live file with seeds and returns the codebase seeds
// the files asked for, in file order.
func (r *Runner) round(ctx context.Context, number int, files []*file, seeds []rewrite.Seed) []rewrite.GlobalSeed {
	ctx, span := r.tracer.Start(ctx, "prune.round",
		trace.WithAttributes(
			attribute.Int("prune.round", number),
			attribute.Int("prune.seeds", len(seeds)),
		))
	defer span.End()

	terms := r.terms(seeds)
	results := make([]*rewrite.FileResult, len(files))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)

	for i, f := range files {
		if f.failed() || !f.relevant(terms) {
			continue
		}

		g.Go(func() error {
			results[i] = r.driver.Rewrite(ctx, f.path, f.text, seeds)

			return nil
		})
	}

	_ = g.Wait()

	var globals []rewrite.GlobalSeed

	for i, res := range results {
		if res == nil {
			continue
		}

		files[i].absorb(res)
		globals = append(globals, res.GlobalSeeds...)

		if res.Err != nil {
			r.logger.WarnContext(ctx, "file failed", "file", res.Path, "round", number, "error", res.Err)
		}
	}

	return globals
}

// terms returns the seed values a file must contain to be worth parsing.
// Boolean literals are too common to discriminate.
func (r *Runner) terms(seeds []rewrite.Seed) [][]byte {
	if !r.opts.GrepHeuristic {
		return nil
	}

	var terms []string

	for _, seed := range seeds {
		for _, value := range seed.Values {
			switch value {
			case "", "true", "false":
				continue
			}

			terms = append(terms, value)
		}
	}

	slices.Sort(terms)
	terms = slices.Compact(terms)

	out := make([][]byte, len(terms))
	for i, term := range terms {
		out[i] = []byte(term)
	}

	return out
}

// finish writes the file when it changed and folds it into the summary.
func (r *Runner) finish(ctx context.Context, f *file, summary *Summary) {
	if f.result == nil {
		summary.Skipped++

		return
	}

	res := f.result

	if res.Status == rewrite.StatusSuccess && res.Changed && !r.opts.DryRun {
		deleted, err := r.write(f)
		if err != nil {
			res.Status = rewrite.StatusFailed
			res.Err = err
		} else if deleted {
			summary.Deleted++
		}
	}

	summary.Processed++
	summary.Files = append(summary.Files, res)

	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordFile(ctx, res)
	}

	if res.Status == rewrite.StatusFailed {
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{Path: res.Path, Err: res.Err})

		return
	}

	summary.Succeeded++

	if res.Changed {
		summary.Changed++
	}
}

// write stores the rewritten text, or removes the file when it became blank
// and deletion is enabled.
func (r *Runner) write(f *file) (bool, error) {
	if r.opts.DeleteEmptyFiles && len(bytes.TrimSpace(f.text)) == 0 {
		if err := os.Remove(f.path); err != nil {
			return false, fmt.Errorf("remove %s: %w", f.path, err)
		}

		return true, nil
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.path, err)
	}

	if err := os.WriteFile(f.path, f.text, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", f.path, err)
	}

	return false, nil
}
