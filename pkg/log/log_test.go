package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Child-logger helpers must support chaining level methods directly on
// the return value.
func TestChildLoggersChainAndCarryFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", JSONOutput: true, Output: &buf})

	WithComponent("api").Warn().Str("task_id", "t1").Msg("queue refused")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"component":"api"`)
	assert.Contains(t, out, `"task_id":"t1"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "queue refused")

	buf.Reset()
	WithTaskID("t2").Error().Msg("row write failed")
	assert.Contains(t, buf.String(), `"task_id":"t2"`)
	assert.Contains(t, buf.String(), `"level":"error"`)

	buf.Reset()
	WithAlias("tokyo").Info().Msg("profile loaded")
	assert.Contains(t, buf.String(), `"alias":"tokyo"`)
}

func TestInitDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "not-a-level", JSONOutput: true, Output: &buf})

	WithComponent("worker").Debug().Msg("suppressed")
	assert.Empty(t, buf.String())

	WithComponent("worker").Info().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
