package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/prune/internal/observability"
	"github.com/Sumatoshi-tech/prune/pkg/batch"
	"github.com/Sumatoshi-tech/prune/pkg/config"
	"github.com/Sumatoshi-tech/prune/pkg/match"
	"github.com/Sumatoshi-tech/prune/pkg/report"
	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
	"github.com/Sumatoshi-tech/prune/pkg/version"
)

const metricsReadHeaderTimeout = 5 * time.Second

// RunCommand holds the flags of the run command.
type RunCommand struct {
	configPath  string
	language    string
	rules       []string
	noBuiltin   bool
	sets        []string
	maxSteps    int
	maxRounds   int
	workers     int
	timeout     time.Duration
	dryRun      bool
	format      string
	metricsAddr string
	logLevel    string
	all         bool
	patch       bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Remove a stale feature flag from source files",
		Long: `Rewrite every source file under the given paths until no cleanup rule applies.

Examples:
  prune run --set stale_flag_name=NEW_CHECKOUT --set treated=true src/
  prune run --dry-run --patch --language go --rules rules/ ./...`,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "config file (default ./prune.yaml)")
	cmd.Flags().StringVarP(&rc.language, "language", "l", config.DefaultLanguage, "source language")
	cmd.Flags().StringSliceVarP(&rc.rules, "rules", "r", nil, "rule files or directories")
	cmd.Flags().BoolVar(&rc.noBuiltin, "no-builtin", false, "do not load the built-in rules of the language")
	cmd.Flags().StringArrayVarP(&rc.sets, "set", "s", nil, "hole substitution key=value (repeatable)")
	cmd.Flags().IntVar(&rc.maxSteps, "max-steps", config.DefaultMaxSteps, "work items per file before giving up")
	cmd.Flags().IntVar(&rc.maxRounds, "max-rounds", config.DefaultMaxRounds, "codebase rescans for cross-file cascades")
	cmd.Flags().IntVarP(&rc.workers, "workers", "w", config.DefaultWorkers, "parallel files (0 = CPU count)")
	cmd.Flags().DurationVar(&rc.timeout, "timeout", 0, "abort the run after this duration (0 = none)")
	cmd.Flags().BoolVarP(&rc.dryRun, "dry-run", "n", false, "report changes without writing files")
	cmd.Flags().StringVarP(&rc.format, "format", "f", report.FormatText, "report format: text, json")
	cmd.Flags().StringVar(&rc.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&rc.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&rc.all, "all", false, "list unchanged files in the text report")
	cmd.Flags().BoolVar(&rc.patch, "patch", false, "append a diff of every changed file")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}

	rc.applyFlags(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	subs, err := rc.substitutions(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	providers, err := observability.Init(ctx, observabilityConfig(cfg, observability.ModeRun))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		if shutdownErr := providers.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown", "error", shutdownErr)
		}
	}()

	if cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
		defer cancel()
	}

	if providers.MetricsHandler != nil {
		stop, serveErr := serveMetrics(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, providers.Logger)
		if serveErr != nil {
			return serveErr
		}

		defer stop()
	}

	runner, err := buildRunner(cfg, providers)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	summary, err := runner.Run(ctx, paths, subs)
	if err != nil {
		return err
	}

	providers.Logger.InfoContext(ctx, "run finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"changed", summary.Changed,
		"failed", summary.Failed,
		"rounds", summary.Rounds,
	)

	opts := report.TextOptions{All: rc.all, Patches: rc.patch}
	if err := report.Write(cmd.OutOrStdout(), rc.format, summary, opts); err != nil {
		return err
	}

	if !summary.OK() {
		return fmt.Errorf("%w: %d of %d file(s)", ErrRewriteFailed, summary.Failed, summary.Processed)
	}

	return nil
}

// applyFlags overrides configuration values with the flags set on the command line.
func (rc *RunCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("language") {
		cfg.Language = rc.language
	}

	if flags.Changed("rules") {
		cfg.Rules.Paths = rc.rules
	}

	if flags.Changed("no-builtin") {
		cfg.Rules.Builtin = !rc.noBuiltin
	}

	if flags.Changed("max-steps") {
		cfg.Run.MaxSteps = rc.maxSteps
	}

	if flags.Changed("max-rounds") {
		cfg.Run.MaxRounds = rc.maxRounds
	}

	if flags.Changed("workers") {
		cfg.Run.Workers = rc.workers
	}

	if flags.Changed("timeout") {
		cfg.Run.Timeout = rc.timeout
	}

	if flags.Changed("dry-run") {
		cfg.Run.DryRun = rc.dryRun
	}

	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = rc.metricsAddr
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = rc.logLevel
	}
}

// substitutions merges the configured hole values with the --set pairs.
// Flags win over the config file.
func (rc *RunCommand) substitutions(cfg *config.Config) (rule.Substitutions, error) {
	fromFlags, err := rule.ParseSubstitutions(rc.sets)
	if err != nil {
		return nil, err
	}

	subs := rule.Substitutions(maps.Clone(cfg.Substitutions))
	if subs == nil {
		subs = rule.Substitutions{}
	}

	maps.Copy(subs, fromFlags)

	return subs.Normalize(), nil
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Version
	obs.Mode = mode
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obs.LogLevel = cfg.Logging.SlogLevel()
	obs.LogJSON = cfg.Logging.Format == config.FormatJSON
	obs.TraceVerbose = cfg.Logging.SlogLevel() <= slog.LevelDebug

	return obs
}

func buildRunner(cfg *config.Config, providers observability.Providers) (*batch.Runner, error) {
	lang, err := syntax.LookupLanguage(cfg.Language)
	if err != nil {
		return nil, err
	}

	set, err := loadRuleSet(lang.Name, cfg.Rules.Builtin, cfg.Rules.Paths)
	if err != nil {
		return nil, err
	}

	for _, cycle := range set.Cycles() {
		providers.Logger.Warn("rule graph has a cycle; the step limit bounds it", "cycle", cycle.Error())
	}

	engine, err := match.NewEngine(lang, match.Options{Logger: providers.Logger})
	if err != nil {
		return nil, err
	}

	if err := engine.Prepare(set); err != nil {
		return nil, err
	}

	metrics, err := observability.NewRewriteMetrics(providers.Meter, lang.Name)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	driver := rewrite.NewDriver(engine, set, rewrite.Options{
		MaxSteps: cfg.Run.MaxSteps,
		Logger:   providers.Logger,
		Tracer:   providers.Tracer,
	})

	return batch.NewRunner(driver, lang, batch.Options{
		Workers:          cfg.Run.Workers,
		MaxRounds:        cfg.Run.MaxRounds,
		DryRun:           cfg.Run.DryRun,
		DeleteEmptyFiles: cfg.Run.DeleteEmptyFiles,
		GrepHeuristic:    cfg.Run.GrepHeuristic,
		Logger:           providers.Logger,
		Tracer:           providers.Tracer,
		Recorder:         metrics,
	}), nil
}

// serveMetrics exposes handler on addr until the returned stop is called.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsReadHeaderTimeout)
		defer cancel()

		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Warn("metrics server shutdown", "error", shutdownErr)
		}
	}, nil
}
