// Package commands implements the prune subcommands.
package commands

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/prune/pkg/rule"
)

var (
	// ErrRewriteFailed is returned by run when at least one file failed.
	ErrRewriteFailed = errors.New("rewrite failed")
	// ErrValidationFailed is returned by validate when a rule file is rejected.
	ErrValidationFailed = errors.New("rule validation failed")
	// ErrUnknownGraphFormat is returned by graph for formats other than dot and list.
	ErrUnknownGraphFormat = errors.New("unknown graph format")
)

const (
	exitCodeFailure           = 1
	exitCodeValidationFailure = 2
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if errors.Is(err, ErrValidationFailed) {
		return exitCodeValidationFailure
	}

	return exitCodeFailure
}

// loadRuleSet merges the built-in rules of language with the rule files at
// paths and expands the result into a rule set.
func loadRuleSet(language string, builtin bool, paths []string) (*rule.Set, error) {
	file := &rule.File{}

	if builtin {
		shipped, err := rule.Builtin(language)
		if err != nil {
			return nil, err
		}

		file.Merge(shipped)
	}

	if len(paths) > 0 {
		extra, err := rule.LoadFiles(paths...)
		if err != nil {
			return nil, err
		}

		file.Merge(extra)
	}

	set, err := rule.NewSet(file)
	if err != nil {
		return nil, fmt.Errorf("build rule graph: %w", err)
	}

	return set, nil
}
