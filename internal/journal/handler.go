package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/Conceptual-Machines/daytale-api/internal/logger"
)

// Error messages returned to callers
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgBodyTooLarge     = "Request body too large."
	msgMissingKey       = "Server missing OPENROUTER_API_KEY"
	msgServerError      = "Server error."
	msgTimeout          = "Upstream request timed out."
	msgNoText           = "No text returned from model."
	upstreamErrorPrefix = "Upstream error: "
)

// Outcomes reported to the metrics recorder
const (
	OutcomeSuccess          = "success"
	OutcomeDebugEcho        = "debug_echo"
	OutcomeMethodNotAllowed = "method_not_allowed"
	OutcomeClientError      = "client_error"
	OutcomeMisconfigured    = "misconfigured"
	OutcomeUpstreamError    = "upstream_error"
	OutcomeUpstreamTimeout  = "upstream_timeout"
	OutcomeEmptyCompletion  = "empty_completion"
	OutcomeServerError      = "server_error"
)

var errEmptyCompletion = errors.New("no text returned from model")

// Recorder receives per-request generation metrics
type Recorder interface {
	RecordGeneration(ctx context.Context, outcome string, duration time.Duration)
	RecordTokenUsage(ctx context.Context, model string, usage llm.Usage)
}

// Options configures a Handler
type Options struct {
	Template      *Template
	DebugEcho     bool
	MaxBodyBytes  int64
	MaxInputChars int
	// Secrets are scrubbed from every response body
	Secrets []string
}

// Handler turns one inbound request into at most one upstream generation.
// It holds no per-request state and is safe for concurrent use.
type Handler struct {
	provider llm.Provider
	recorder Recorder
	opts     Options
}

// Inbound is a transport-neutral view of an HTTP request.
// Body may be a decoded map, a JSON string, raw bytes or a stream.
type Inbound struct {
	Method    string
	Body      any
	Query     url.Values
	Header    http.Header
	RequestID string
}

// Response is a transport-neutral JSON response
type Response struct {
	Status int
	Header map[string]string
	Body   json.RawMessage
}

// TextResponse is the success payload
type TextResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the failure payload
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details []string       `json:"details,omitempty"`
	Saw     map[string]any `json:"saw,omitempty"`
}

// EchoResponse is returned by the debug GET path
type EchoResponse struct {
	Method      string `json:"method"`
	Kind        string `json:"kind,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Style       string `json:"style,omitempty"`
	Tone        string `json:"tone,omitempty"`
	NotesSource string `json:"notesSource,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHandler creates a new generation handler
func NewHandler(provider llm.Provider, recorder Recorder, opts Options) *Handler {
	if opts.Template == nil {
		opts.Template = MustLoadTemplate(TemplateGuided)
	}
	return &Handler{
		provider: provider,
		recorder: recorder,
		opts:     opts,
	}
}

// Handle processes one request. It never panics and never returns a
// response that contains a configured secret.
func (h *Handler) Handle(ctx context.Context, in Inbound) (resp Response) {
	start := time.Now()
	outcome := OutcomeServerError

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling generate request", fmt.Errorf("panic: %v", r), h.fields(in, nil))
			resp = h.respond(http.StatusInternalServerError, ErrorResponse{Error: msgServerError})
			outcome = OutcomeServerError
		}
		if h.recorder != nil {
			h.recorder.RecordGeneration(ctx, outcome, time.Since(start))
		}
	}()

	resp, outcome = h.handle(ctx, in)
	return resp
}

func (h *Handler) handle(ctx context.Context, in Inbound) (Response, string) {
	method := strings.ToUpper(in.Method)
	if method != http.MethodPost {
		if method == http.MethodGet && h.opts.DebugEcho {
			return h.debugEcho(method, in), OutcomeDebugEcho
		}
		resp := h.respond(http.StatusMethodNotAllowed, ErrorResponse{Error: msgMethodNotAllowed})
		resp.Header["Allow"] = h.allowedMethods()
		return resp, OutcomeMethodNotAllowed
	}

	body, err := DecodeBody(in.Body, h.opts.MaxBodyBytes)
	if err != nil {
		return h.respond(http.StatusRequestEntityTooLarge, ErrorResponse{Error: msgBodyTooLarge}), OutcomeClientError
	}

	body, query, header := h.scrubInput(body, in.Query, in.Header)
	req, err := ParseRequest(body, query, header, h.opts.MaxInputChars)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return h.respond(reqErr.Status, ErrorResponse{
				Error:   reqErr.Message,
				Details: reqErr.Details,
				Saw:     reqErr.Saw,
			}), OutcomeClientError
		}
		return h.serverError(in, "Failed to parse request", err), OutcomeServerError
	}

	userPrompt, err := h.opts.Template.UserPrompt(req)
	if err != nil {
		return h.serverError(in, "Failed to build prompt", err), OutcomeServerError
	}

	if h.provider == nil || !h.provider.Available() {
		logger.Error("Upstream credential missing", llm.ErrNotConfigured, h.fields(in, nil))
		return h.respond(http.StatusInternalServerError, ErrorResponse{Error: msgMissingKey}), OutcomeMisconfigured
	}

	callStart := time.Now()
	chat, err := h.provider.Complete(ctx, &llm.ChatRequest{
		SystemPrompt: h.opts.Template.SystemPrompt(),
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return h.upstreamFailure(in, err)
	}

	text := CleanText(chat.Text)
	if text == "" {
		logger.Error("Upstream returned no text", errEmptyCompletion, h.fields(in, logger.Fields{"model": chat.Model}))
		return h.respond(http.StatusBadGateway, ErrorResponse{Error: msgNoText}), OutcomeEmptyCompletion
	}

	if h.recorder != nil {
		h.recorder.RecordTokenUsage(ctx, chat.Model, chat.Usage)
	}
	logger.LogGenerationRequest(ctx, chat.Model, time.Since(callStart), h.fields(in, logger.Fields{
		"kind":           req.Kind.String(),
		"total_tokens":   chat.Usage.TotalTokens,
		"prompt_chars":   len(userPrompt),
		"response_chars": len(text),
	}))

	return h.respond(http.StatusOK, TextResponse{Text: text}), OutcomeSuccess
}

func (h *Handler) upstreamFailure(in Inbound, err error) (Response, string) {
	var upstreamErr *llm.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		logger.Error("Upstream returned error status", err, h.fields(in, logger.Fields{
			"upstream_status": upstreamErr.StatusCode,
		}))
		return h.respond(upstreamErr.StatusCode, ErrorResponse{
			Error: upstreamErrorPrefix + upstreamErr.Detail(),
		}), OutcomeUpstreamError

	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("Upstream request timed out", err, h.fields(in, nil))
		return h.respond(http.StatusGatewayTimeout, ErrorResponse{Error: msgTimeout}), OutcomeUpstreamTimeout

	case errors.Is(err, llm.ErrNotConfigured):
		logger.Error("Upstream credential missing", err, h.fields(in, nil))
		return h.respond(http.StatusInternalServerError, ErrorResponse{Error: msgMissingKey}), OutcomeMisconfigured

	default:
		return h.serverError(in, "Upstream request failed", err), OutcomeServerError
	}
}

func (h *Handler) debugEcho(method string, in Inbound) Response {
	echo := EchoResponse{Method: method}

	body, err := DecodeBody(in.Body, h.opts.MaxBodyBytes)
	if err != nil {
		echo.Error = msgBodyTooLarge
		return h.respond(http.StatusOK, echo)
	}
	body, query, header := h.scrubInput(body, in.Query, in.Header)
	req, err := ParseRequest(body, query, header, h.opts.MaxInputChars)
	if err != nil {
		echo.Error = err.Error()
		return h.respond(http.StatusOK, echo)
	}

	echo.Kind = req.Kind.String()
	echo.Prompt = req.Prompt
	echo.Notes = req.Notes
	echo.Style = req.Style
	echo.Tone = req.Tone
	echo.NotesSource = string(req.NotesSource)
	return h.respond(http.StatusOK, echo)
}

func (h *Handler) allowedMethods() string {
	if h.opts.DebugEcho {
		return "GET, POST"
	}
	return http.MethodPost
}

func (h *Handler) serverError(in Inbound, msg string, err error) Response {
	logger.Error(msg, err, h.fields(in, nil))
	return h.respond(http.StatusInternalServerError, ErrorResponse{Error: msgServerError})
}

// respond encodes payload with every configured secret scrubbed from it
func (h *Handler) respond(status int, payload any) Response {
	raw, err := h.encode(payload)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"` + msgServerError + `"}`)
	}
	return Response{
		Status: status,
		Header: map[string]string{},
		Body:   json.RawMessage(raw),
	}
}

// encode redacts decoded string values rather than encoded bytes, so
// secrets that JSON escapes are still found.
func (h *Handler) encode(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil || len(h.opts.Secrets) == 0 {
		return raw, err
	}

	var tree any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	scrubbed, changed := h.redactValue(tree)
	if !changed {
		return raw, nil
	}
	return json.Marshal(scrubbed)
}

func (h *Handler) redactValue(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		out := h.redact(val)
		return out, out != val
	case []any:
		out := make([]any, len(val))
		changed := false
		for i, item := range val {
			var c bool
			out[i], c = h.redactValue(item)
			changed = changed || c
		}
		return out, changed
	case map[string]any:
		out := make(map[string]any, len(val))
		changed := false
		for k, item := range val {
			key := h.redact(k)
			scrubbed, c := h.redactValue(item)
			out[key] = scrubbed
			changed = changed || c || key != k
		}
		return out, changed
	default:
		return v, false
	}
}

// scrubInput removes secrets from caller input before parsing, so
// diagnostics built from truncated or re-encoded input cannot carry them.
func (h *Handler) scrubInput(body map[string]any, query url.Values, header http.Header) (map[string]any, url.Values, http.Header) {
	if len(h.opts.Secrets) == 0 {
		return body, query, header
	}
	scrubbed, _ := h.redactValue(body)
	body, _ = scrubbed.(map[string]any)
	return body, h.redactMulti(query), h.redactMulti(header)
}

func (h *Handler) redactMulti(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, values := range in {
		scrubbed := make([]string, len(values))
		for i, v := range values {
			scrubbed[i] = h.redact(v)
		}
		out[h.redact(k)] = scrubbed
	}
	return out
}

func (h *Handler) redact(s string) string {
	for _, secret := range h.opts.Secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, llm.RedactedPlaceholder)
	}
	return s
}

func (h *Handler) fields(in Inbound, extra logger.Fields) logger.Fields {
	fields := logger.Fields{
		"request_id": in.RequestID,
		"method":     in.Method,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// CleanText strips surrounding quote characters and whitespace
func CleanText(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '"' || r == '\'' || unicode.IsSpace(r)
	})
}
