package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Run("should parse a bare answer object", func(t *testing.T) {
		parsed, ok := parseResponse(`{"thought": "done", "answer": "42"}`)

		require.True(t, ok)
		assert.True(t, parsed.IsAnswer())
		assert.Equal(t, "42", *parsed.Answer)
		assert.Equal(t, "done", parsed.Thought)
	})

	t.Run("should parse a tool request with params", func(t *testing.T) {
		parsed, ok := parseResponse(`{"thought": "look it up", "tool": "calendar_read", "params": {"day": "today"}}`)

		require.True(t, ok)
		assert.False(t, parsed.IsAnswer())
		assert.Equal(t, "calendar_read", *parsed.Tool)
		assert.Equal(t, "today", parsed.Params["day"])
	})

	t.Run("should prefer a fenced block", func(t *testing.T) {
		content := "Sure, here is my plan:\n```json\n{\"thought\": \"t\", \"answer\": \"fenced\"}\n```\nignore {\"answer\": \"stray\"}"
		parsed, ok := parseResponse(content)

		require.True(t, ok)
		assert.Equal(t, "fenced", *parsed.Answer)
	})

	t.Run("should find the first balanced object in prose", func(t *testing.T) {
		content := `I think the answer is {"thought": "ok", "answer": "embedded"} hope that helps`
		parsed, ok := parseResponse(content)

		require.True(t, ok)
		assert.Equal(t, "embedded", *parsed.Answer)
	})

	t.Run("should handle braces inside string literals", func(t *testing.T) {
		content := `{"thought": "uses { and }", "answer": "a}b"}`
		parsed, ok := parseResponse(content)

		require.True(t, ok)
		assert.Equal(t, "a}b", *parsed.Answer)
	})

	t.Run("should reject plain prose", func(t *testing.T) {
		_, ok := parseResponse("The capital of France is Paris.")
		assert.False(t, ok)
	})

	t.Run("should reject an object with neither answer nor tool", func(t *testing.T) {
		_, ok := parseResponse(`{"thought": "hmm"}`)
		assert.False(t, ok)
	})

	t.Run("should reject a blank tool name", func(t *testing.T) {
		_, ok := parseResponse(`{"thought": "t", "tool": "  "}`)
		assert.False(t, ok)
	})

	t.Run("should reject malformed json", func(t *testing.T) {
		_, ok := parseResponse(`{"thought": "t", "answer": `)
		assert.False(t, ok)
	})

	t.Run("should treat empty answer string as a valid answer", func(t *testing.T) {
		parsed, ok := parseResponse(`{"thought": "nothing to say", "answer": ""}`)

		require.True(t, ok)
		assert.True(t, parsed.IsAnswer())
	})
}

func TestFirstObjectSpan(t *testing.T) {
	t.Run("should return empty for unbalanced input", func(t *testing.T) {
		assert.Equal(t, "", firstObjectSpan(`{"a": {"b": 1}`))
	})

	t.Run("should return empty when no brace exists", func(t *testing.T) {
		assert.Equal(t, "", firstObjectSpan("no json here"))
	})

	t.Run("should span nested objects", func(t *testing.T) {
		assert.Equal(t, `{"a": {"b": 1}}`, firstObjectSpan(`x {"a": {"b": 1}} y`))
	})
}
