package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/prune/pkg/config"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
)

const (
	graphFormatDot  = "dot"
	graphFormatList = "list"
)

// GraphCommand holds the flags of the graph command.
type GraphCommand struct {
	language  string
	rules     []string
	noBuiltin bool
	format    string
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	gc := &GraphCommand{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the expanded rule graph",
		Long: `Print the rule graph after group expansion, either as Graphviz or as a list.
Cycles are reported on stderr.

Examples:
  prune graph --language java | dot -Tsvg > rules.svg
  prune graph --no-builtin --rules rules/ --format list`,
		Args: cobra.NoArgs,
		RunE: gc.run,
	}

	cmd.Flags().StringVarP(&gc.language, "language", "l", config.DefaultLanguage, "language of the built-in rules")
	cmd.Flags().StringSliceVarP(&gc.rules, "rules", "r", nil, "rule files or directories")
	cmd.Flags().BoolVar(&gc.noBuiltin, "no-builtin", false, "do not load the built-in rules of the language")
	cmd.Flags().StringVarP(&gc.format, "format", "f", graphFormatDot, "output format: dot, list")

	return cmd
}

func (gc *GraphCommand) run(cmd *cobra.Command, _ []string) error {
	if gc.format != graphFormatDot && gc.format != graphFormatList {
		return fmt.Errorf("%w: %q", ErrUnknownGraphFormat, gc.format)
	}

	set, err := loadRuleSet(gc.language, !gc.noBuiltin, gc.rules)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if gc.format == graphFormatDot {
		fmt.Fprint(out, set.Dot())
	} else {
		writeList(out, set)
	}

	for _, cycle := range set.Cycles() {
		color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "warning: %s\n", cycle.Error())
	}

	return nil
}

// writeList prints the rules in dependency order with their outgoing edges.
func writeList(out io.Writer, set *rule.Set) {
	seeds := make(map[string]bool)
	for _, r := range set.Seeds() {
		seeds[r.Name] = true
	}

	for _, name := range set.Order() {
		marker := ""
		if seeds[name] {
			marker = " (seed)"
		}

		fmt.Fprintf(out, "%s%s\n", name, marker)

		for _, target := range set.Outgoing(name) {
			fmt.Fprintf(out, "  -> %s [%s]\n", target.Rule, target.Scope)
		}
	}
}
