package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

// Defaults applied to notes requests
const (
	DefaultStyle = "reflective"
	DefaultTone  = "calm"

	// NotesHeader is the last-resort source for notes
	NotesHeader = "X-Notes"

	maxPreviewChars = 200
)

// ErrBodyTooLarge is returned when the inbound body exceeds the configured cap
var ErrBodyTooLarge = errors.New("request body too large")

// RequestKind tags which shape a GenerationRequest has
type RequestKind int

const (
	// PromptRequest carries a ready-made prompt that bypasses the template
	PromptRequest RequestKind = iota + 1
	// NotesRequest carries notes plus style and tone for the template
	NotesRequest
)

func (k RequestKind) String() string {
	switch k {
	case PromptRequest:
		return "prompt"
	case NotesRequest:
		return "notes"
	default:
		return "unknown"
	}
}

// FieldSource records where the notes were found
type FieldSource string

const (
	SourceBody   FieldSource = "body"
	SourceQuery  FieldSource = "query"
	SourceHeader FieldSource = "header"
)

// GenerationRequest is a validated inbound request. Exactly one of the two
// shapes is populated, selected by Kind.
type GenerationRequest struct {
	Kind RequestKind

	// PromptRequest
	Prompt string

	// NotesRequest
	Notes       string
	Style       string
	Tone        string
	NotesSource FieldSource
}

// RequestError is a client error detected while reading the request
type RequestError struct {
	Status  int
	Message string
	// Details lists individual validation failures
	Details []string
	// Saw is an optional echo of what was received, for debugging clients
	Saw map[string]any
}

func (e *RequestError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + " " + strings.Join(e.Details, "; ")
}

// DecodeBody turns any of the accepted physical body forms into a JSON
// object: an already-decoded map, a JSON string, raw bytes or a stream.
// Malformed JSON, and JSON that is not an object, decode to an empty map.
// Only an oversized body is an error.
func DecodeBody(src any, limit int64) (map[string]any, error) {
	switch body := src.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return body, nil
	case string:
		return decodeBytes([]byte(body), limit)
	case json.RawMessage:
		return decodeBytes(body, limit)
	case []byte:
		return decodeBytes(body, limit)
	case io.Reader:
		reader := body
		if limit > 0 {
			reader = io.LimitReader(body, limit+1)
		}
		raw, err := io.ReadAll(reader)
		if err != nil {
			return map[string]any{}, nil
		}
		return decodeBytes(raw, limit)
	default:
		return map[string]any{}, nil
	}
}

func decodeBytes(raw []byte, limit int64) (map[string]any, error) {
	if limit > 0 && int64(len(raw)) > limit {
		return nil, ErrBodyTooLarge
	}
	decoded := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return decoded, nil
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return map[string]any{}, nil
	}
	return decoded, nil
}

// ParseRequest validates the decoded body and falls back to the query string
// and the X-Notes header for notes. A non-empty prompt wins over notes.
// maxChars bounds the length of the prompt or notes; zero disables the check.
func ParseRequest(body map[string]any, query url.Values, header http.Header, maxChars int) (GenerationRequest, error) {
	var errs *multierror.Error

	prompt, err := stringField(body, "prompt")
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	notes, err := stringField(body, "notes")
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	style, err := stringField(body, "style")
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	tone, err := stringField(body, "tone")
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if errs.ErrorOrNil() != nil {
		details := make([]string, 0, len(errs.Errors))
		for _, e := range errs.Errors {
			details = append(details, e.Error())
		}
		return GenerationRequest{}, &RequestError{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body.",
			Details: details,
		}
	}

	if prompt = strings.TrimSpace(prompt); prompt != "" {
		if err := checkLength("prompt", prompt, maxChars); err != nil {
			return GenerationRequest{}, err
		}
		return GenerationRequest{Kind: PromptRequest, Prompt: prompt}, nil
	}

	req := GenerationRequest{
		Kind:  NotesRequest,
		Style: firstNonBlank(style, query.Get("style"), DefaultStyle),
		Tone:  firstNonBlank(tone, query.Get("tone"), DefaultTone),
	}
	switch {
	case strings.TrimSpace(notes) != "":
		req.Notes, req.NotesSource = strings.TrimSpace(notes), SourceBody
	case strings.TrimSpace(query.Get("notes")) != "":
		req.Notes, req.NotesSource = strings.TrimSpace(query.Get("notes")), SourceQuery
	case strings.TrimSpace(header.Get(NotesHeader)) != "":
		req.Notes, req.NotesSource = strings.TrimSpace(header.Get(NotesHeader)), SourceHeader
	default:
		return GenerationRequest{}, &RequestError{
			Status:  http.StatusBadRequest,
			Message: `Missing or invalid "notes" string.`,
			Saw:     describeInput(body, query, header),
		}
	}
	if err := checkLength("notes", req.Notes, maxChars); err != nil {
		return GenerationRequest{}, err
	}
	return req, nil
}

// stringField returns body[key] when it is a string. Absent and null are
// empty; any other JSON type is rejected.
func stringField(body map[string]any, key string) (string, error) {
	value, ok := body[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%q must be a string, got %s", key, jsonTypeName(value))
	}
	return s, nil
}

func checkLength(field, value string, maxChars int) error {
	if maxChars <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(value); n > maxChars {
		return &RequestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("%s too long: %d characters (max %d)", field, n, maxChars),
		}
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// describeInput builds the diagnostic echo attached to a missing-notes error
func describeInput(body map[string]any, query url.Values, header http.Header) map[string]any {
	bodyKeys := make([]string, 0, len(body))
	for k := range body {
		bodyKeys = append(bodyKeys, k)
	}
	sort.Strings(bodyKeys)

	queryKeys := make([]string, 0, len(query))
	for k := range query {
		queryKeys = append(queryKeys, k)
	}
	sort.Strings(queryKeys)

	preview, _ := json.Marshal(body)

	headers := map[string]string{}
	for _, name := range []string{"Content-Type", "Content-Length", "User-Agent"} {
		if v := header.Get(name); v != "" {
			headers[strings.ToLower(name)] = truncateRunes(v, maxPreviewChars)
		}
	}

	return map[string]any{
		"bodyKeys":    bodyKeys,
		"bodyPreview": truncateRunes(string(preview), maxPreviewChars),
		"queryKeys":   queryKeys,
		"headers":     headers,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
