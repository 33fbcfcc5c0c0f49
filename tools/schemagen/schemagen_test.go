package main

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/prune/pkg/batch"
	"github.com/Sumatoshi-tech/prune/pkg/report"
	"github.com/Sumatoshi-tech/prune/pkg/rewrite"
)

func TestBuild_Report(t *testing.T) {
	t.Parallel()

	schema := build(targets[0])

	assert.Equal(t, draft07, schema.Schema)
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Required, "run_id")
	assert.True(t, slices.IsSorted(schema.Required))
	assert.Equal(t, "integer", schema.Properties["processed"].Type)

	files := schema.Properties["files"]
	require.Equal(t, "array", files.Type)
	assert.Equal(t, "#/definitions/FileEntry", files.Items.Ref)

	entry := schema.Definitions["FileEntry"]
	require.NotNil(t, entry)
	assert.NotContains(t, entry.Required, "error")
	assert.Equal(t, "array", entry.Properties["applied_rules"].Type)
}

func TestBuild_ValidatesRealReport(t *testing.T) {
	t.Parallel()

	var schemaJSON bytes.Buffer
	require.NoError(t, encode(&schemaJSON, build(targets[0])))

	summary := &batch.Summary{
		RunID:     "run-1",
		Processed: 2,
		Succeeded: 1,
		Failed:    1,
		Changed:   1,
		Rounds:    1,
		Duration:  time.Second,
		Files: []*rewrite.FileResult{
			{Path: "a.java", Status: rewrite.StatusSuccess, AppliedRules: []string{"fold"}, Changed: true, Steps: 3},
			{Path: "b.java", Status: rewrite.StatusFailed, Err: errors.New("boom")},
		},
		Failures: []batch.Failure{{Path: "b.java", Err: errors.New("boom")}},
	}

	var doc bytes.Buffer
	require.NoError(t, report.JSON(&doc, summary))

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON.Bytes()),
		gojsonschema.NewBytesLoader(doc.Bytes()),
	)
	require.NoError(t, err)
	assert.True(t, result.Valid(), "%v", result.Errors())
}
