package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/prune/pkg/version"
)

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "prune dev (commit: <unknown>, built: <unknown>)", version.String())
}
