package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageJSON(content string) string {
	return `{"id":"msg_01","type":"message","role":"assistant","model":"claude-haiku-4-5-20251001",` +
		`"content":` + content + `,"stop_reason":"end_turn","stop_sequence":null,` +
		`"usage":{"input_tokens":12,"output_tokens":3}}`
}

// newTestClient points an Anthropic client at handler and records request bodies.
func newTestClient(t *testing.T, handler func(body map[string]any) (int, string)) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		status, resp := handler(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)

	c, err := NewAnthropic("test-key", Config{BaseURL: srv.URL, MaxRetries: -1})
	require.NoError(t, err)
	return c
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic("", Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestComplete(t *testing.T) {
	var seen map[string]any
	c := newTestClient(t, func(body map[string]any) (int, string) {
		seen = body
		return http.StatusOK, messageJSON(`[{"type":"text","text":"SELECT 1"},{"type":"text","text":";"}]`)
	})

	text, err := c.Complete(context.Background(), "be terse", "check this")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", text)
	assert.Equal(t, DefaultModel, seen["model"])
	assert.NotNil(t, seen["system"])
}

func TestCompleteEmpty(t *testing.T) {
	c := newTestClient(t, func(map[string]any) (int, string) {
		return http.StatusOK, messageJSON(`[]`)
	})
	_, err := c.Complete(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleteAPIError(t *testing.T) {
	c := newTestClient(t, func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`
	})
	_, err := c.Complete(context.Background(), "", "hi")
	assert.Error(t, err)
}

func TestChoose(t *testing.T) {
	var seen map[string]any
	c := newTestClient(t, func(body map[string]any) (int, string) {
		seen = body
		return http.StatusOK, messageJSON(`[{"type":"tool_use","id":"toolu_01","name":"Plot","input":{}}]`)
	})

	choice, err := c.Choose(context.Background(), "route", "plot sales by month", []Choice{
		{Name: "Plot", Description: "plots"},
		{Name: "Answer", Description: "answers"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Plot", choice)

	tools, ok := seen["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 2)
	toolChoice, ok := seen["tool_choice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "any", toolChoice["type"])
}

func TestChooseWithoutToolUse(t *testing.T) {
	c := newTestClient(t, func(map[string]any) (int, string) {
		return http.StatusOK, messageJSON(`[{"type":"text","text":"I think Plot"}]`)
	})
	_, err := c.Choose(context.Background(), "", "q", []Choice{{Name: "Plot"}})
	assert.ErrorIs(t, err, ErrNoChoice)

	_, err = c.Choose(context.Background(), "", "q", nil)
	assert.ErrorIs(t, err, ErrNoChoice)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fences", in: "  print(1)\n", want: "print(1)"},
		{name: "python fence", in: "```python\nimport pandas as pd\nprint(1)\n```", want: "import pandas as pd\nprint(1)"},
		{name: "bare fence", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "prose around fence", in: "Here you go:\n```sql\nSELECT 2\n```\nDone.", want: "SELECT 2"},
		{name: "unterminated", in: "```python\nprint(3)", want: "print(3)"},
		{name: "single line", in: "```SELECT 4```", want: "SELECT 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
