package batch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/pkg/batch"
	"github.com/Sumatoshi-tech/prune/pkg/match"
	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
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

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) RecordFile(_ context.Context, res *rewrite.FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths = append(r.paths, res.Path)
}

func newRunner(t *testing.T, opts batch.Options) *batch.Runner {
	t.Helper()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	file, err := rule.Builtin("java")
	require.NoError(t, err)

	set, err := rule.NewSet(file)
	require.NoError(t, err)

	engine, err := match.NewEngine(lang, match.Options{})
	require.NoError(t, err)
	require.NoError(t, engine.Prepare(set))

	return batch.NewRunner(rewrite.NewDriver(engine, set, rewrite.Options{}), lang, opts)
}

func seedFalse() rule.Substitutions {
	return rule.Substitutions{rule.HoleFlagName: "X", rule.HoleTreated: "false"}.Normalize()
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"src/Service.java":      serviceSource,
		"src/nested/Other.java": "class Other {}\n",
		"vendor/Lib.java":       "class Lib {}\n",
		".hidden/Secret.java":   "class Secret {}\n",
		"README.md":             "# docs\n",
	})

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	explicit := filepath.Join(root, "vendor", "Lib.java")

	files, err := batch.Discover([]string{root, explicit, filepath.Join(root, "src")}, lang)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "src", "Service.java"),
		filepath.Join(root, "src", "nested", "Other.java"),
		explicit,
	}, files)

	_, err = batch.Discover([]string{filepath.Join(root, "missing")}, lang)
	require.ErrorIs(t, err, batch.ErrInvalidPath)
}

func TestRun_RewritesFilesAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"Service.java": serviceSource,
		"Quiet.java":   "class Quiet {\n  void run() { go(); }\n}\n",
		"Broken.java":  "class Broken { void m() { flags.isEnabled(X) \n",
	})

	rec := &recorder{}
	runner := newRunner(t, batch.Options{Workers: 2, GrepHeuristic: true, Recorder: rec})

	summary, err := runner.Run(context.Background(), []string{root}, seedFalse())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Skipped, "Quiet.java never mentions the flag")
	assert.Equal(t, 1, summary.Rounds)
	assert.False(t, summary.OK())

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, filepath.Join(root, "Broken.java"), summary.Failures[0].Path)
	require.ErrorIs(t, summary.Failures[0].Err, syntax.ErrSyntax)

	assert.Equal(t, "class Service {\n  void run() {\n    B();\n  }\n}\n", readFile(t, filepath.Join(root, "Service.java")))
	assert.Equal(t, "class Broken { void m() { flags.isEnabled(X) \n", readFile(t, filepath.Join(root, "Broken.java")))
	assert.ElementsMatch(t, []string{filepath.Join(root, "Broken.java"), filepath.Join(root, "Service.java")}, rec.paths)
}

func TestRun_DryRunLeavesFilesUntouched(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"Service.java": serviceSource})
	runner := newRunner(t, batch.Options{DryRun: true})

	summary, err := runner.Run(context.Background(), []string{root}, seedFalse())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, serviceSource, readFile(t, filepath.Join(root, "Service.java")))

	require.Len(t, summary.Files, 1)
	assert.Contains(t, string(summary.Files[0].Output), "B();")
	assert.NotContains(t, string(summary.Files[0].Output), "A();")
}

func TestRun_CodebaseSeedsTriggerAnotherRound(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"Config.java": `class Config {
  boolean enabled() {
    return flags.isEnabled(X);
  }
}
`,
		"User.java": `class User {
  void run() {
    if (config.enabled()) {
      A();
    }
  }
}
`,
	})

	runner := newRunner(t, batch.Options{GrepHeuristic: true})

	summary, err := runner.Run(context.Background(), []string{root},
		rule.Substitutions{rule.HoleFlagName: "X", rule.HoleTreated: "true"}.Normalize())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Rounds)
	assert.Equal(t, 2, summary.Changed)
	assert.True(t, summary.OK())

	assert.Contains(t, readFile(t, filepath.Join(root, "Config.java")), "return true;")

	user := readFile(t, filepath.Join(root, "User.java"))
	assert.Contains(t, user, "A();")
	assert.NotContains(t, user, "enabled()")
}

func TestRun_DeletesFilesThatBecomeEmpty(t *testing.T) {
	t.Parallel()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	set, err := rule.NewSet(&rule.File{Rules: []rule.Rule{{
		Name: "drop_class", Seed: true,
		Query:       "(class_declaration name: (identifier) @name) @class",
		ReplaceNode: "class",
		Constraints: []rule.Predicate{{Kind: rule.Eq, Capture: "name", Value: "Dead"}},
	}}})
	require.NoError(t, err)

	engine, err := match.NewEngine(lang, match.Options{})
	require.NoError(t, err)

	root := writeTree(t, map[string]string{
		"Dead.java": "class Dead {}\n",
		"Live.java": "class Live {}\n",
	})

	runner := batch.NewRunner(rewrite.NewDriver(engine, set, rewrite.Options{}), lang, batch.Options{DeleteEmptyFiles: true})

	summary, err := runner.Run(context.Background(), []string{root}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Deleted)
	assert.NoFileExists(t, filepath.Join(root, "Dead.java"))
	assert.FileExists(t, filepath.Join(root, "Live.java"))
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"Service.java": serviceSource})
	runner := newRunner(t, batch.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, []string{root}, seedFalse())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_SkipsBinaryFiles(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"Service.java": serviceSource,
		"Blob.java":    "X\x00\x01\x02flags.isEnabled(X)",
	})

	summary, err := newRunner(t, batch.Options{}).Run(context.Background(), []string{root}, seedFalse())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Files, 1)
	assert.Equal(t, filepath.Join(root, "Service.java"), summary.Files[0].Path)
}
