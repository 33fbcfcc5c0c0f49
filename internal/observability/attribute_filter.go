package observability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// keyPolicy decides which span attribute keys may leave the process.
type keyPolicy struct {
	prefixes []string
	exact    []string
	// blocked wins over prefixes. Source text can carry secrets.
	blocked []string
}

var exportPolicy = keyPolicy{
	prefixes: []string{"prune.", "file.", "rewrite.", "error."},
	exact:    []string{"error"},
	blocked:  []string{"file.content", "file.output"},
}

func (p keyPolicy) allows(key string) bool {
	if slices.Contains(p.blocked, key) {
		return false
	}

	if slices.Contains(p.exact, key) {
		return true
	}

	return slices.ContainsFunc(p.prefixes, func(prefix string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// attributeFilter is a SpanProcessor that hands ended spans to its delegate
// with the attributes outside exportPolicy removed.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	policy   keyPolicy
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate. Dropped keys are logged at debug level
// when logger is non-nil.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, policy: exportPolicy, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	kept := make([]attribute.KeyValue, 0, len(s.Attributes()))

	for _, kv := range s.Attributes() {
		if f.policy.allows(string(kv.Key)) {
			kept = append(kept, kv)
		} else if f.logger != nil {
			f.logger.Debug("span attribute dropped", "span", s.Name(), "key", string(kv.Key))
		}
	}

	f.delegate.OnEnd(filteredSpan{ReadOnlySpan: s, attrs: kept})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	if err := f.delegate.Shutdown(ctx); err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	if err := f.delegate.ForceFlush(ctx); err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

// filteredSpan is a ReadOnlySpan whose attributes were filtered at end time.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

func (s filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
