// Package report renders batch summaries for terminals and machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/prune/pkg/batch"
	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for report formats other than text and json.
var ErrUnknownFormat = errors.New("unknown report format")

// TextOptions tunes the terminal report.
type TextOptions struct {
	// All lists unchanged files too.
	All bool
	// Patches appends a diff of every changed file.
	Patches bool
}

var (
	okColor      = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	changedColor = color.New(color.FgYellow)
)

// Text writes a table of the processed files followed by the failures.
func Text(w io.Writer, summary *batch.Summary, opts TextOptions) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"File", "Status", "Edits", "Steps", "Size", "Time"})

	rows := 0

	for _, res := range summary.Files {
		if !opts.All && !res.Changed && res.Err == nil {
			continue
		}

		rows++

		tbl.AppendRow(table.Row{
			res.Path,
			status(res),
			humanize.Comma(int64(len(res.AppliedRules))),
			humanize.Comma(int64(res.Steps)),
			sizeChange(res),
			res.Duration.Round(time.Millisecond).String(),
		})
	}

	if rows > 0 {
		if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if _, err := fmt.Fprintf(w, "\n%s processed, %s changed, %s failed, %s skipped in %d round(s) (%s)\n",
		humanize.Comma(int64(summary.Processed)),
		humanize.Comma(int64(summary.Changed)),
		humanize.Comma(int64(summary.Failed)),
		humanize.Comma(int64(summary.Skipped)),
		summary.Rounds,
		summary.Duration.Round(time.Millisecond),
	); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if summary.Deleted > 0 {
		fmt.Fprintf(w, "%s file(s) removed because they became empty\n", humanize.Comma(int64(summary.Deleted)))
	}

	for _, failure := range summary.Failures {
		failColor.Fprintf(w, "  ✗ %s: %v\n", failure.Path, failure.Err)
	}

	if !opts.Patches {
		return nil
	}

	for _, res := range summary.Files {
		if res.Changed {
			if _, err := fmt.Fprint(w, "\n"+Patch(res.Path, res.Input, res.Output)); err != nil {
				return fmt.Errorf("write patch: %w", err)
			}
		}
	}

	return nil
}

func status(res *rewrite.FileResult) string {
	switch {
	case res.Status == rewrite.StatusFailed:
		return failColor.Sprint(res.Status)
	case res.Changed:
		return changedColor.Sprint("changed")
	default:
		return okColor.Sprint("unchanged")
	}
}

func sizeChange(res *rewrite.FileResult) string {
	before, after := uint64(len(res.Input)), uint64(len(res.Output))
	if before == after {
		return humanize.Bytes(after)
	}

	return fmt.Sprintf("%s → %s", humanize.Bytes(before), humanize.Bytes(after))
}

// FileEntry is one file of the JSON report.
type FileEntry struct {
	Path         string   `json:"path"`
	Status       string   `json:"status"`
	AppliedRules []string `json:"applied_rules"`
	Changed      bool     `json:"changed"`
	Steps        int      `json:"steps"`
	DurationMS   int64    `json:"duration_ms"`
	Error        string   `json:"error,omitempty"`
}

// FailureEntry is one failed file of the JSON report.
type FailureEntry struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Document is the JSON report of a batch run.
type Document struct {
	RunID      string         `json:"run_id"`
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Changed    int            `json:"changed"`
	Skipped    int            `json:"skipped"`
	Deleted    int            `json:"deleted"`
	Rounds     int            `json:"rounds"`
	DurationMS int64          `json:"duration_ms"`
	Files      []FileEntry    `json:"files"`
	Failures   []FailureEntry `json:"failures"`
}

// JSON writes the summary as one indented JSON document.
func JSON(w io.Writer, summary *batch.Summary) error {
	view := Document{
		RunID:      summary.RunID,
		Processed:  summary.Processed,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Changed:    summary.Changed,
		Skipped:    summary.Skipped,
		Deleted:    summary.Deleted,
		Rounds:     summary.Rounds,
		DurationMS: summary.Duration.Milliseconds(),
		Files:      make([]FileEntry, 0, len(summary.Files)),
		Failures:   make([]FailureEntry, 0, len(summary.Failures)),
	}

	for _, res := range summary.Files {
		fv := FileEntry{
			Path:         res.Path,
			Status:       string(res.Status),
			AppliedRules: res.AppliedRules,
			Changed:      res.Changed,
			Steps:        res.Steps,
			DurationMS:   res.Duration.Milliseconds(),
		}

		if fv.AppliedRules == nil {
			fv.AppliedRules = []string{}
		}

		if res.Err != nil {
			fv.Error = res.Err.Error()
		}

		view.Files = append(view.Files, fv)
	}

	for _, failure := range summary.Failures {
		view.Failures = append(view.Failures, FailureEntry{Path: failure.Path, Error: failure.Err.Error()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	return nil
}

// Write renders summary in format.
func Write(w io.Writer, format string, summary *batch.Summary, opts TextOptions) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return JSON(w, summary)
	case FormatText, "":
		return Text(w, summary, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
