package journal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want map[string]any
	}{
		{"nil", nil, map[string]any{}},
		{"decoded object", map[string]any{"notes": "ran"}, map[string]any{"notes": "ran"}},
		{"json string", `{"notes":"ran"}`, map[string]any{"notes": "ran"}},
		{"bytes", []byte(`{"notes":"ran"}`), map[string]any{"notes": "ran"}},
		{"raw message", json.RawMessage(`{"notes":"ran"}`), map[string]any{"notes": "ran"}},
		{"stream", strings.NewReader(`{"notes":"ran"}`), map[string]any{"notes": "ran"}},
		{"empty stream", strings.NewReader(""), map[string]any{}},
		{"malformed stream", strings.NewReader(`{"notes": "ran"`), map[string]any{}},
		{"malformed string", `not json`, map[string]any{}},
		{"json array", `[1,2]`, map[string]any{}},
		{"json null", `null`, map[string]any{}},
		{"json scalar string", `"notes"`, map[string]any{}},
		{"failing reader", iotest.ErrReader(errors.New("reset")), map[string]any{}},
		{"unsupported type", 42, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.src, 1024)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBodyTooLarge(t *testing.T) {
	big := `{"notes":"` + strings.Repeat("a", 100) + `"}`

	_, err := DecodeBody(strings.NewReader(big), 50)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	_, err = DecodeBody(big, 50)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	got, err := DecodeBody(strings.NewReader(big), 0)
	require.NoError(t, err)
	assert.Len(t, got["notes"], 100)
}

func TestParseRequest_Notes(t *testing.T) {
	req, err := ParseRequest(map[string]any{
		"notes": "  walked by the river  ",
		"style": "poetic",
		"tone":  "hopeful",
	}, nil, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, NotesRequest, req.Kind)
	assert.Equal(t, "walked by the river", req.Notes)
	assert.Equal(t, "poetic", req.Style)
	assert.Equal(t, "hopeful", req.Tone)
	assert.Equal(t, SourceBody, req.NotesSource)
}

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest(map[string]any{"notes": "tired", "style": "  "}, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStyle, req.Style)
	assert.Equal(t, DefaultTone, req.Tone)
}

func TestParseRequest_PromptTakesPrecedence(t *testing.T) {
	req, err := ParseRequest(map[string]any{
		"prompt": "  Write about rain.  ",
		"notes":  "ignored",
	}, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, PromptRequest, req.Kind)
	assert.Equal(t, "Write about rain.", req.Prompt)
	assert.Empty(t, req.Notes)
}

func TestParseRequest_BlankPromptFallsBackToNotes(t *testing.T) {
	req, err := ParseRequest(map[string]any{"prompt": "   ", "notes": "slept well"}, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, NotesRequest, req.Kind)
	assert.Equal(t, "slept well", req.Notes)
}

func TestParseRequest_FallbackSources(t *testing.T) {
	query := url.Values{"notes": {"from query"}, "tone": {"wry"}}
	header := http.Header{}
	header.Set(NotesHeader, "from header")

	req, err := ParseRequest(map[string]any{"notes": " "}, query, header, 0)
	require.NoError(t, err)
	assert.Equal(t, "from query", req.Notes)
	assert.Equal(t, SourceQuery, req.NotesSource)
	assert.Equal(t, "wry", req.Tone)

	req, err = ParseRequest(map[string]any{}, url.Values{}, header, 0)
	require.NoError(t, err)
	assert.Equal(t, "from header", req.Notes)
	assert.Equal(t, SourceHeader, req.NotesSource)

	req, err = ParseRequest(map[string]any{"notes": "from body", "tone": "warm"}, query, header, 0)
	require.NoError(t, err)
	assert.Equal(t, "from body", req.Notes)
	assert.Equal(t, "warm", req.Tone, "body wins over query")
}

func TestParseRequest_MissingNotes(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty body", map[string]any{}},
		{"empty notes", map[string]any{"notes": ""}},
		{"whitespace notes", map[string]any{"notes": " \n\t "}},
		{"null notes", map[string]any{"notes": nil, "style": "poetic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.body, nil, nil, 0)
			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, http.StatusBadRequest, reqErr.Status)
			assert.Equal(t, `Missing or invalid "notes" string.`, reqErr.Message)
			require.NotNil(t, reqErr.Saw)
			assert.Contains(t, reqErr.Saw, "bodyKeys")
			assert.Contains(t, reqErr.Saw, "bodyPreview")
		})
	}
}

func TestParseRequest_WrongTypesAreRejected(t *testing.T) {
	_, err := ParseRequest(map[string]any{
		"prompt": 12.0,
		"notes":  []any{"a"},
		"style":  true,
		"tone":   "calm",
	}, nil, nil, 0)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	require.Len(t, reqErr.Details, 3)
	assert.Contains(t, reqErr.Details[0], `"prompt" must be a string, got number`)
	assert.Contains(t, reqErr.Details[1], `"notes" must be a string, got array`)
	assert.Contains(t, reqErr.Details[2], `"style" must be a string, got boolean`)
}

func TestParseRequest_TooLong(t *testing.T) {
	_, err := ParseRequest(map[string]any{"notes": strings.Repeat("é", 11)}, nil, nil, 10)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "notes too long: 11 characters (max 10)", reqErr.Message)

	_, err = ParseRequest(map[string]any{"prompt": strings.Repeat("x", 11)}, nil, nil, 10)
	require.True(t, errors.As(err, &reqErr))
	assert.Contains(t, reqErr.Message, "prompt too long")

	_, err = ParseRequest(map[string]any{"notes": strings.Repeat("é", 10)}, nil, nil, 10)
	assert.NoError(t, err)
}

func TestDescribeInputTruncatesPreview(t *testing.T) {
	body := map[string]any{"b": strings.Repeat("x", 500), "a": 1.0}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer client-token")

	saw := describeInput(body, url.Values{"z": {"1"}}, header)

	assert.Equal(t, []string{"a", "b"}, saw["bodyKeys"])
	assert.Equal(t, []string{"z"}, saw["queryKeys"])
	preview, ok := saw["bodyPreview"].(string)
	require.True(t, ok)
	assert.Len(t, preview, maxPreviewChars)

	headers, ok := saw["headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["content-type"])
	assert.NotContains(t, headers, "authorization")
}

func TestRequestKindString(t *testing.T) {
	assert.Equal(t, "prompt", PromptRequest.String())
	assert.Equal(t, "notes", NotesRequest.String())
	assert.Equal(t, "unknown", RequestKind(0).String())
}
