package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/prune/pkg/match"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// ValidateCommand holds the flags of the validate command.
type ValidateCommand struct {
	language    string
	withBuiltin bool
	noColor     bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	vc := &ValidateCommand{}

	cmd := &cobra.Command{
		Use:   "validate <rules.yaml>...",
		Short: "Check rule files against the schema and the rule graph",
		Long: `Validate rule files: the schema, hole and capture references, edge endpoints,
and, when a language is given, every query against its grammar.

Examples:
  prune validate rules/flags.yaml
  prune validate --language java --with-builtin rules/`,
		Args: cobra.MinimumNArgs(1),
		RunE: vc.run,
	}

	cmd.Flags().StringVarP(&vc.language, "language", "l", "", "compile the queries with this grammar")
	cmd.Flags().BoolVar(&vc.withBuiltin, "with-builtin", false, "validate together with the built-in rules of --language")
	cmd.Flags().BoolVar(&vc.noColor, "no-color", false, "disable colored output")

	return cmd
}

func (vc *ValidateCommand) run(cmd *cobra.Command, args []string) error {
	if vc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	out := cmd.OutOrStdout()

	file, problems := vc.load(out, args)
	if problems > 0 {
		return fmt.Errorf("%w: %d problem(s)", ErrValidationFailed, problems)
	}

	set, err := rule.NewSet(file)
	if err != nil {
		reportProblems(out, "rule graph", err)

		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	if vc.language != "" {
		if err := compileQueries(vc.language, set); err != nil {
			reportProblems(out, vc.language+" queries", err)

			return fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
	}

	for _, cycle := range set.Cycles() {
		color.New(color.FgYellow).Fprintf(out, "warning: %s\n", cycle.Error())
	}

	color.New(color.FgGreen).Fprintf(out, "%d rule(s) valid, %d seed(s)\n", set.Len(), len(set.Seeds()))

	return nil
}

// load parses every file separately so that each reports its own schema
// violations. It returns the merged document and the number of bad files.
func (vc *ValidateCommand) load(out io.Writer, paths []string) (*rule.File, int) {
	merged := &rule.File{}
	problems := 0

	if vc.withBuiltin && vc.language != "" {
		shipped, err := rule.Builtin(vc.language)
		if err != nil {
			reportProblems(out, "builtin", err)

			problems++
		}

		merged.Merge(shipped)
	}

	for _, path := range paths {
		file, err := rule.LoadFiles(path)
		if err != nil {
			reportProblems(out, path, err)

			problems++

			continue
		}

		color.New(color.FgGreen).Fprintf(out, "ok   %s (%d rule(s), %d edge(s))\n", path, len(file.Rules), len(file.Edges))
		merged.Merge(file)
	}

	return merged, problems
}

func compileQueries(language string, set *rule.Set) error {
	lang, err := syntax.LookupLanguage(language)
	if err != nil {
		return err
	}

	engine, err := match.NewEngine(lang, match.Options{})
	if err != nil {
		return err
	}

	return engine.Prepare(set)
}

func reportProblems(out io.Writer, label string, err error) {
	color.New(color.FgRed).Fprintf(out, "FAIL %s\n", label)

	var schemaErr *rule.SchemaError
	if errors.As(err, &schemaErr) {
		for _, problem := range schemaErr.Problems {
			color.New(color.FgRed).Fprintf(out, "  - %s\n", problem)
		}

		return
	}

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, inner := range joined.Unwrap() {
			color.New(color.FgRed).Fprintf(out, "  - %v\n", inner)
		}

		return
	}

	color.New(color.FgRed).Fprintf(out, "  - %v\n", err)
}
