package commands_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/cmd/prune/commands"
)

const serviceSource = `class Service {
  void run() {
    if (flags.isEnabled(X)) {
      A();
    } else {
      B();
    }
  }
}
`

const dropRule = `rules:
  - name: drop_dead_class
    seed: true
    query: "(class_declaration name: (identifier) @name) @class"
    replace_node: class
    constraints:
      - kind: eq
        capture: name
        value: Dead
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestRun_RewritesFilesAndReportsJSON(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "Service.java", serviceSource)

	out, err := execute(t, commands.NewRunCommand(), root,
		"--set", "stale_flag_name=X", "--set", "treated=false", "--format", "json")
	require.NoError(t, err)

	var report struct {
		Processed int `json:"processed"`
		Changed   int `json:"changed"`
		Files     []struct {
			Path         string   `json:"path"`
			AppliedRules []string `json:"applied_rules"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Changed)
	require.Len(t, report.Files, 1)
	assert.Contains(t, report.Files[0].AppliedRules, "replace_enabled_api")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class Service {\n  void run() {\n    B();\n  }\n}\n", string(data))
}

func TestRun_DryRunPrintsPatch(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "Service.java", serviceSource)

	out, err := execute(t, commands.NewRunCommand(), root,
		"--set", "stale_flag_name=X", "--set", "treated=true", "--dry-run", "--patch")
	require.NoError(t, err)

	assert.Contains(t, out, "+++ b/")
	assert.Contains(t, out, "-      B();")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, serviceSource, string(data))
}

func TestRun_FailedFileFailsTheCommand(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Broken.java", "class Broken { void m() { flags.isEnabled(X) \n")

	_, err := execute(t, commands.NewRunCommand(), root,
		"--set", "stale_flag_name=X", "--set", "treated=true")
	require.ErrorIs(t, err, commands.ErrRewriteFailed)
	assert.Equal(t, 1, commands.ExitCode(err))
}

func TestRun_CustomRulesWithoutBuiltin(t *testing.T) {
	root := t.TempDir()
	rules := writeFile(t, t.TempDir(), "drop.yaml", dropRule)
	writeFile(t, root, "Dead.java", "class Dead {}\n")
	writeFile(t, root, "Live.java", "class Live {}\n")

	_, err := execute(t, commands.NewRunCommand(), root, "--no-builtin", "--rules", rules)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, "Dead.java"))
	assert.FileExists(t, filepath.Join(root, "Live.java"))
}

func TestRun_FlagsCompleteConfigFile(t *testing.T) {
	root := t.TempDir()
	rules := writeFile(t, t.TempDir(), "drop.yaml", dropRule)
	cfgPath := writeFile(t, t.TempDir(), "prune.yaml", "rules:\n  builtin: false\n")
	writeFile(t, root, "Dead.java", "class Dead {}\n")

	_, err := execute(t, commands.NewRunCommand(), root, "--config", cfgPath)
	require.Error(t, err)

	_, err = execute(t, commands.NewRunCommand(), root, "--config", cfgPath, "--rules", rules)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "Dead.java"))
}

func TestRun_RejectsBadInput(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"malformed substitution", []string{root, "--set", "novalue"}},
		{"unknown language", []string{root, "--language", "cobol"}},
		{"negative workers", []string{root, "--workers", "-1"}},
		{"missing rules", []string{root, "--rules", filepath.Join(root, "absent.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, commands.NewRunCommand(), tt.args...)
			require.Error(t, err)
		})
	}
}

func TestValidate_AcceptsRuleFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "drop.yaml", dropRule)

	out, err := execute(t, commands.NewValidateCommand(), "--language", "java", path)
	require.NoError(t, err)

	assert.Contains(t, out, "ok   "+path)
	assert.Contains(t, out, "1 rule(s) valid, 1 seed(s)")
}

func TestValidate_WithBuiltinRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "drop.yaml", dropRule)

	out, err := execute(t, commands.NewValidateCommand(), "--language", "java", "--with-builtin", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rule(s) valid")
}

func TestValidate_RejectsBrokenRules(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		args    []string
	}{
		{"schema violation", "rules:\n  - name: no_query\n", nil},
		{"unknown field", "rules:\n  - name: a\n    query: \"(identifier) @x\"\n    colour: red\n", nil},
		{"dangling edge", dropRule + "edges:\n  - from: drop_dead_class\n    to: [missing]\n    scope: Class\n", nil},
		{"bad query", "rules:\n  - name: a\n    query: \"(no_such_node) @x\"\n", []string{"--language", "java"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".yaml", tt.content)

			out, err := execute(t, commands.NewValidateCommand(), append(tt.args, path)...)
			require.ErrorIs(t, err, commands.ErrValidationFailed)
			assert.Equal(t, 2, commands.ExitCode(err))
			assert.Contains(t, out, "FAIL")
		})
	}
}

func TestGraph_Formats(t *testing.T) {
	rules := writeFile(t, t.TempDir(), "chain.yaml", `rules:
  - name: first
    seed: true
    query: "(identifier) @id"
  - name: second
    query: "(identifier) @id"
edges:
  - from: first
    to: [second]
    scope: Method
`)

	out, err := execute(t, commands.NewGraphCommand(), "--no-builtin", "--rules", rules, "--format", "list")
	require.NoError(t, err)
	assert.Equal(t, "first (seed)\n  -> second [Method]\nsecond\n", out)

	out, err = execute(t, commands.NewGraphCommand(), "--no-builtin", "--rules", rules)
	require.NoError(t, err)
	assert.Contains(t, out, `digraph "Rules"`)
	assert.Contains(t, out, "first")

	_, err = execute(t, commands.NewGraphCommand(), "--format", "svg")
	require.ErrorIs(t, err, commands.ErrUnknownGraphFormat)
}

func TestGraph_BuiltinRules(t *testing.T) {
	out, err := execute(t, commands.NewGraphCommand(), "--language", "java", "--format", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "replace_enabled_api (seed)")
	assert.Contains(t, out, "-> collapse_if_true [Statement]")
}
