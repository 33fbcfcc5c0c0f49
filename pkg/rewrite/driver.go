package rewrite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/prune/pkg/match"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/scope"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// DefaultMaxSteps bounds the work items processed for one file.
const DefaultMaxSteps = 10_000

// tracerName is the default OTel tracer name for the driver.
const tracerName = "prune"

// State is a phase of the per-file state machine.
type State int

// Driver states.
const (
	Idle State = iota
	Seeding
	Matching
	Editing
	Reparsing
	Done
	Aborted
)

var stateNames = [...]string{"Idle", "Seeding", "Matching", "Editing", "Reparsing", "Done", "Aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the outcome of one file.
type Status string

// File outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StepLimitExceededError aborts a file whose work queue did not drain within
// the step bound. The text after the last committed edit is kept.
type StepLimitExceededError struct {
	Limit int
	Rule  string
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("step limit of %d exceeded (last rule %s)", e.Limit, e.Rule)
}

// Seed starts a cascade: a rule applied at the root with initial bindings.
type Seed struct {
	Rule   string
	Values map[string]string
}

// GlobalSeed is a rule a codebase-scoped edge asks to apply to every file.
type GlobalSeed struct {
	Rule   string
	Values map[string]string
}

// Key identifies the seed by rule and bindings.
func (g GlobalSeed) Key() string {
	return WorkItem{Rule: g.Rule, Bindings: g.Values}.key()
}

// FileResult is the outcome of rewriting one file.
type FileResult struct {
	Path         string
	Status       Status
	AppliedRules []string
	Err          error
	// Input is the text the file had before the first rewrite.
	Input []byte
	// Output is the rewritten text; it equals Input when nothing fired.
	Output []byte

	Changed     bool
	Steps       int
	Duration    time.Duration
	GlobalSeeds []GlobalSeed
}

// Options configures a Driver.
type Options struct {
	// MaxSteps bounds the work items processed per file; DefaultMaxSteps when zero.
	MaxSteps int
	// Logger receives state transitions at debug level.
	Logger *slog.Logger
	// Tracer creates the per-file span. Falls back to otel.Tracer("prune").
	Tracer trace.Tracer
}

// Driver applies a rule set to files of one language. It is safe for
// concurrent use; each Rewrite call owns its tree, text and queue.
type Driver struct {
	engine   *match.Engine
	parser   *syntax.Parser
	set      *rule.Set
	maxSteps int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDriver creates a driver over set using engine for matching.
func NewDriver(engine *match.Engine, set *rule.Set, opts Options) *Driver {
	d := &Driver{
		engine:   engine,
		parser:   syntax.NewParser(engine.Queries().Language()),
		set:      set,
		maxSteps: opts.MaxSteps,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}

	if d.maxSteps <= 0 {
		d.maxSteps = DefaultMaxSteps
	}

	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}

	return d
}

// Seeds returns one seed per seed rule of the set, all bound to values.
func (d *Driver) Seeds(values map[string]string) []Seed {
	seeds := make([]Seed, 0, len(d.set.Seeds()))
	for _, r := range d.set.Seeds() {
		seeds = append(seeds, Seed{Rule: r.Name, Values: values})
	}

	return seeds
}

// Rewrite drives seeds over source to a fixed point. It never returns an
// error: file-scoped failures are reported in the result.
func (d *Driver) Rewrite(ctx context.Context, path string, source []byte, seeds []Seed) *FileResult {
	started := time.Now()

	ctx, span := d.tracer.Start(ctx, "prune.rewrite",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.Int("file.size", len(source)),
		))
	defer span.End()

	r := &run{
		driver: d,
		path:   path,
		text:   source,
		queue:  newQueue(),
		result: &FileResult{Path: path, Status: StatusSuccess, Input: source},
		seen:   make(map[string]bool),
	}

	r.execute(ctx, seeds)

	r.result.Output = r.text
	r.result.Changed = !bytes.Equal(source, r.text)
	r.result.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("rewrite.steps", r.result.Steps),
		attribute.Int("rewrite.applied", len(r.result.AppliedRules)),
	)

	if r.result.Err != nil {
		span.RecordError(r.result.Err)
		span.SetStatus(codes.Error, r.result.Err.Error())
	}

	return r.result
}

// run is the state of one Rewrite call.
type run struct {
	driver  *Driver
	path    string
	state   State
	text    []byte
	tree    *syntax.Tree
	history history
	queue   *queue
	result  *FileResult
	seen    map[string]bool
}

func (r *run) transition(to State) {
	if r.state == to {
		return
	}

	r.driver.logger.Debug("rewrite state", "file", r.path, "from", r.state, "to", to)
	r.state = to
}

func (r *run) fail(err error) {
	r.result.Status = StatusFailed
	r.result.Err = err
	r.transition(Aborted)
}

func (r *run) execute(ctx context.Context, seeds []Seed) {
	tree, err := r.driver.parser.Parse(ctx, r.text)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", r.path, err))

		return
	}

	r.tree = tree
	defer func() { r.tree.Close() }()

	for _, seed := range seeds {
		if _, ok := r.driver.set.Rule(seed.Rule); !ok {
			r.fail(fmt.Errorf("%w: unknown seed rule %q", rule.ErrInvalidRule, seed.Rule))

			return
		}

		r.transition(Seeding)
		r.queue.pushBack(WorkItem{
			Rule:     seed.Rule,
			Anchor:   scope.AnchorOf(r.tree.Root()),
			Bindings: seed.Values,
			Version:  len(r.history),
		})

		if !r.drain(ctx) {
			return
		}
	}

	r.transition(Done)
}

// drain processes the queue until it is empty. It returns false when the
// file was aborted.
func (r *run) drain(ctx context.Context) bool {
	for r.queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			r.fail(err)

			return false
		}

		item, _ := r.queue.pop()

		if r.result.Steps == r.driver.maxSteps {
			r.fail(&StepLimitExceededError{Limit: r.driver.maxSteps, Rule: item.Rule})

			return false
		}

		r.result.Steps++

		r.transition(Matching)

		if !r.step(ctx, item) {
			return false
		}
	}

	return true
}

// step attempts one work item. It returns false when the file was aborted.
func (r *run) step(ctx context.Context, item WorkItem) bool {
	target, _ := r.driver.set.Rule(item.Rule)

	root, ok := scope.Locate(r.tree, item.Anchor, r.history.shift(item.Version))
	if !ok {
		r.driver.logger.Debug("scope vanished", "file", r.path, "rule", item.Rule, "anchor", item.Anchor)

		return true
	}

	matches, err := r.driver.engine.MatchRule(r.tree, target, root, item.Bindings)
	if err != nil {
		// Edges from seeds without a receiver leave some holes unbound.
		level := slog.LevelWarn
		if errors.Is(err, rule.ErrUnboundHole) {
			level = slog.LevelDebug
		}

		r.driver.logger.Log(ctx, level, "rule skipped", "file", r.path, "rule", item.Rule, "error", err)

		return true
	}

	if !target.Edits() {
		for _, m := range matches {
			r.propagate(target.Name, m.Node, m.Values)
		}

		return true
	}

	for _, m := range matches {
		if m.Replacement == string(r.text[m.Range.Start:m.Range.End]) {
			continue
		}

		origin, ok := r.commit(ctx, m)
		if !ok {
			return false
		}

		r.result.AppliedRules = append(r.result.AppliedRules, target.Name)
		r.queue.pushFront(item)
		r.propagate(target.Name, origin, m.Values)

		return true
	}

	return true
}

// commit applies m as one pass and replaces the tree. It returns the node
// covering the replacement in the new tree. ok is false when the pass was
// refused or the new text does not parse; the file is aborted in both cases.
func (r *run) commit(ctx context.Context, m match.Match) (syntax.Node, bool) {
	r.transition(Editing)

	buf := NewBuffer(r.text)

	err := buf.Replace(m.Range, m.Replacement, m.Rule.Name)
	if err == nil && m.Replacement == "" {
		err = queueDeletionCleanup(buf, r.text, m.Range)
	}

	if err != nil {
		r.fail(fmt.Errorf("%s: %w", r.path, err))

		return syntax.Node{}, false
	}

	next := buf.Bytes()
	origin := buf.Position(m.Range.Start)
	edit := buf.span()

	r.transition(Reparsing)

	tree, err := r.driver.parser.Parse(ctx, next)
	if err != nil {
		repaired := repairSeparators(next)

		repairedTree, repairErr := r.driver.parser.Parse(ctx, repaired)
		if repairErr != nil {
			r.fail(fmt.Errorf("%s: rule %s produced unparsable text: %w", r.path, m.Rule.Name, err))

			return syntax.Node{}, false
		}

		fix := diffSpan(next, repaired)
		origin = fix.apply(origin)
		next, tree = repaired, repairedTree

		r.history = append(r.history, edit, fix)
	} else {
		r.history = append(r.history, edit)
	}

	r.tree.Close()
	r.tree = tree
	r.text = next

	covered := syntax.Range{Start: origin, End: min(origin+len(m.Replacement), len(next))}

	return r.tree.NodeCovering(covered), true
}

// propagate queues the outgoing edges of fired, resolving each scope from origin.
func (r *run) propagate(fired string, origin syntax.Node, values map[string]string) {
	for _, edge := range r.driver.set.Outgoing(fired) {
		if edge.Scope == scope.Codebase {
			r.recordGlobal(GlobalSeed{Rule: edge.Rule, Values: values})
		}

		root, err := r.driver.engine.Resolver().Resolve(origin, edge.Scope)
		if err != nil {
			if !errors.Is(err, scope.ErrScopeNotFound) {
				r.driver.logger.Warn("scope resolution failed", "file", r.path, "rule", edge.Rule, "error", err)
			}

			continue
		}

		r.queue.pushBack(WorkItem{
			Rule:     edge.Rule,
			Anchor:   scope.AnchorOf(root),
			Bindings: values,
			Version:  len(r.history),
		})
	}
}

func (r *run) recordGlobal(seed GlobalSeed) {
	seed.Values = maps.Clone(seed.Values)

	key := seed.Key()
	if r.seen[key] {
		return
	}

	r.seen[key] = true
	r.result.GlobalSeeds = append(r.result.GlobalSeeds, seed)
}

// Describe renders a short human-readable summary of a result.
func (f *FileResult) Describe() string {
	switch {
	case f.Err != nil:
		return fmt.Sprintf("%s: %s after %d step(s): %v", f.Path, f.Status, f.Steps, f.Err)
	case !f.Changed:
		return fmt.Sprintf("%s: unchanged", f.Path)
	default:
		rules := slices.Compact(slices.Sorted(slices.Values(f.AppliedRules)))

		return fmt.Sprintf("%s: %d edit(s) by %s", f.Path, len(f.AppliedRules), strings.Join(rules, ", "))
	}
}
