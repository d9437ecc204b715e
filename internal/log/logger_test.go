package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
)

func jsonLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: component, Format: "json", Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogger_ComponentOnEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, ComponentExpense)

	l.Info("one")
	l.WithComponent(ComponentImport).Warn("two", FieldAdded, 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, ComponentExpense, lines[0][FieldComponent])
	assert.Equal(t, ComponentImport, lines[1][FieldComponent])
	assert.EqualValues(t, 3, lines[1][FieldAdded])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	l.Info("hidden")
	l.Error("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, ComponentApp, lines[0][FieldComponent])
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())

	var buf bytes.Buffer
	l := jsonLogger(&buf, ComponentHTTP)
	assert.Same(t, l, FromContext(IntoContext(context.Background(), l)))
}

func TestContextLoggerCarriesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, ComponentHTTP).With(FieldRequestID, "req-1")
	ctx := IntoContext(context.Background(), l)

	FromContext(ctx).InfoContext(ctx, "handled")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, ComponentHTTP, lines[0][FieldComponent])
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf, ComponentApp))
	ctx := context.Background()

	sl.LogExpenseCreated(ctx, core.Expense{ID: 9, VendorName: "Swiggy", Category: core.Food, Amount: core.Money{Cents: 35000}},
		NewFields().WithAnomalyDecision("mean_stddev", 412.5))
	sl.LogError(ctx, "boom", errors.New("disk full"), ComponentStorage, OpCreate, nil)
	sl.LogHTTPEnd(ctx, httptest.NewRequest(http.MethodPost, "/expenses", nil), 400, 3, "10.0.0.1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.EqualValues(t, 9, lines[0][FieldExpenseID])
	assert.Equal(t, "Food", lines[0][FieldCategory])
	assert.Equal(t, "mean_stddev", lines[0][FieldAnomalyRule])
	assert.EqualValues(t, 412.5, lines[0][FieldThreshold])
	assert.Equal(t, "disk full", lines[1][FieldError])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "WARN", lines[2]["level"])
	assert.EqualValues(t, 400, lines[2][FieldStatusCode])
}
