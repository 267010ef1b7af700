package log

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	Info(CatResolve, "field resolved", "field", "Bank_Currency", "instance", "abc")

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "[resolve]")
	assert.Contains(t, out, "field resolved")
	assert.Contains(t, out, "field=Bank_Currency")
	assert.Contains(t, out, "instance=abc")
}

func TestLog_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)
	SetMinLevel(LevelWarn)
	defer SetMinLevel(LevelDebug)

	Debug(CatCache, "dropped")
	Info(CatCache, "dropped too")
	Warn(CatCache, "kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestLog_DisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)
	SetEnabled(false)
	defer SetEnabled(true)

	Error(CatEngine, "should not appear")
	assert.Empty(t, buf.String())
}

func TestErrorErr_AppendsError(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	ErrorErr(CatSchema, "load failed", assert.AnError, "path", "Bank.yaml")

	out := buf.String()
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "error="+assert.AnError.Error())
}

func TestLog_OddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	Info(CatConfig, "odd", "orphan")
	assert.Contains(t, buf.String(), "orphan=<missing>")
}

func TestSubscribe_ReceivesEntries(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := Subscribe(ctx)
	require.NotNil(t, ch)

	Info(CatWatcher, "schema changed")

	select {
	case ev := <-ch:
		assert.Contains(t, ev.Payload, "schema changed")
	case <-time.After(time.Second):
		t.Fatal("expected a log event")
	}
}
