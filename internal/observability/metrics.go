package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
)

const (
	metricFilesTotal    = "prune.files.total"
	metricRulesFired    = "prune.rules.fired.total"
	metricFileSteps     = "prune.file.steps"
	metricFileDuration  = "prune.file.duration.seconds"
	metricFilesChanged  = "prune.files.changed.total"
	attrStatus          = "status"
	attrRule            = "rule"
	attrLanguage        = "language"
	defaultLanguageAttr = "unknown"
)

// durationBucketBoundaries covers 1ms to 60s per file.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// stepBucketBoundaries covers a handful of work items up to the default step limit.
var stepBucketBoundaries = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000}

// RewriteMetrics holds the instruments fed by finished files.
type RewriteMetrics struct {
	filesTotal   metric.Int64Counter
	filesChanged metric.Int64Counter
	rulesFired   metric.Int64Counter
	fileSteps    metric.Int64Histogram
	fileDuration metric.Float64Histogram
	language     string
}

// NewRewriteMetrics creates the rewrite instruments from mt. language labels
// every measurement.
func NewRewriteMetrics(mt metric.Meter, language string) (*RewriteMetrics, error) {
	if language == "" {
		language = defaultLanguageAttr
	}

	var err error

	rm := &RewriteMetrics{
		filesTotal: instrument[metric.Int64Counter](&err, metricFilesTotal)(mt.Int64Counter(metricFilesTotal,
			metric.WithDescription("Files processed, by outcome"), metric.WithUnit("{file}"))),
		filesChanged: instrument[metric.Int64Counter](&err, metricFilesChanged)(mt.Int64Counter(metricFilesChanged,
			metric.WithDescription("Files whose text changed"), metric.WithUnit("{file}"))),
		rulesFired: instrument[metric.Int64Counter](&err, metricRulesFired)(mt.Int64Counter(metricRulesFired,
			metric.WithDescription("Committed rule applications"), metric.WithUnit("{edit}"))),
		fileSteps: instrument[metric.Int64Histogram](&err, metricFileSteps)(mt.Int64Histogram(metricFileSteps,
			metric.WithDescription("Work items processed per file"), metric.WithUnit("{step}"),
			metric.WithExplicitBucketBoundaries(stepBucketBoundaries...))),
		fileDuration: instrument[metric.Float64Histogram](&err, metricFileDuration)(mt.Float64Histogram(metricFileDuration,
			metric.WithDescription("Rewrite duration per file in seconds"), metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(durationBucketBoundaries...))),
		language: language,
	}

	if err != nil {
		return nil, err
	}

	return rm, nil
}

// instrument passes a created instrument through and keeps the first
// creation error in errp.
func instrument[T any](errp *error, name string) func(T, error) T {
	return func(inst T, err error) T {
		if err != nil && *errp == nil {
			*errp = fmt.Errorf("create %s: %w", name, err)
		}

		return inst
	}
}

// RecordFile records one finished file.
func (rm *RewriteMetrics) RecordFile(ctx context.Context, res *rewrite.FileResult) {
	lang := attribute.String(attrLanguage, rm.language)

	rm.filesTotal.Add(ctx, 1, metric.WithAttributes(lang, attribute.String(attrStatus, string(res.Status))))
	rm.fileSteps.Record(ctx, int64(res.Steps), metric.WithAttributes(lang))
	rm.fileDuration.Record(ctx, res.Duration.Seconds(), metric.WithAttributes(lang))

	if res.Changed {
		rm.filesChanged.Add(ctx, 1, metric.WithAttributes(lang))
	}

	for _, name := range res.AppliedRules {
		rm.rulesFired.Add(ctx, 1, metric.WithAttributes(lang, attribute.String(attrRule, name)))
	}
}
