package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/observe"
)

// events decodes one JSON object per log line.
func events(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	_, err := core.Slice(context.Background(), observe.Log[int]("numbers", observe.WithLogger(logger)).Apply(flow.Just(1, 2)))
	require.NoError(t, err)

	got := events(t, &buf)
	var messages []string
	for _, e := range got {
		messages = append(messages, e["message"].(string))
		assert.Equal(t, "numbers", e["stage"])
		assert.Equal(t, "debug", e["level"])
	}
	assert.Equal(t, []string{"subscribed", "request", "next", "next", "complete"}, messages)
	assert.Equal(t, "unbounded", got[1]["n"])
	assert.Equal(t, 1.0, got[2]["value"])

	id, ok := got[0]["subscription"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	for _, e := range got {
		assert.Equal(t, id, e["subscription"])
	}
}

func TestLog_ContextLoggerAndOptions(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	stage := observe.Log[string]("words", observe.WithLevel(zerolog.InfoLevel), observe.WithoutValues())
	_, _ = core.Slice(ctx, stage.Apply(flow.Just("secret")))
	_, _ = core.Slice(ctx, stage.Apply(flow.Fail[string](boom)))

	got := events(t, &buf)
	ids := map[any]bool{}
	for _, e := range got {
		ids[e["subscription"]] = true
		assert.NotContains(t, e, "value")
		if e["message"] == "error" {
			assert.Equal(t, "error", e["level"])
			assert.Equal(t, "boom", e["error"])
		} else {
			assert.Equal(t, "info", e["level"])
		}
	}
	assert.Len(t, ids, 2, "each subscription gets its own id")
}
