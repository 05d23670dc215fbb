// Package serverless maps AWS Lambda invocations onto the journal handler.
package serverless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Conceptual-Machines/daytale-api/internal/journal"
	"github.com/Conceptual-Machines/daytale-api/internal/logger"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Adapter answers API Gateway HTTP API (v2) events and direct invocations
type Adapter struct {
	journal *journal.Handler
}

func NewAdapter(h *journal.Handler) *Adapter {
	return &Adapter{journal: h}
}

// eventProbe distinguishes gateway events from direct invocation payloads
type eventProbe struct {
	RequestContext *struct {
		HTTP *json.RawMessage `json:"http"`
	} `json:"requestContext"`
}

// Invoke is the lambda.Start entrypoint. An API Gateway v2 event is served
// as the HTTP request it describes. Any other payload is treated as a POST
// whose body is the payload itself.
func (a *Adapter) Invoke(ctx context.Context, payload json.RawMessage) (events.APIGatewayV2HTTPResponse, error) {
	var probe eventProbe
	if err := json.Unmarshal(payload, &probe); err == nil && probe.RequestContext != nil && probe.RequestContext.HTTP != nil {
		var event events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(payload, &event); err == nil {
			return a.HandleHTTP(ctx, event), nil
		}
	}

	return a.HandleDirect(ctx, payload), nil
}

// HandleHTTP serves one API Gateway v2 HTTP event
func (a *Adapter) HandleHTTP(ctx context.Context, event events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	requestID := event.RequestContext.RequestID
	if requestID == "" {
		requestID = invocationID(ctx)
	}

	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			logger.Warn("Failed to decode base64 body", logger.Fields{"request_id": requestID, "error": err.Error()})
			body = ""
		} else {
			body = string(decoded)
		}
	}

	header := http.Header{}
	for k, v := range event.Headers {
		header.Set(k, v)
	}

	return toResponse(requestID, a.journal.Handle(ctx, journal.Inbound{
		Method:    event.RequestContext.HTTP.Method,
		Body:      body,
		Query:     queryValues(event),
		Header:    header,
		RequestID: requestID,
	}))
}

// HandleDirect serves a direct invocation whose payload is the request object
func (a *Adapter) HandleDirect(ctx context.Context, payload json.RawMessage) events.APIGatewayV2HTTPResponse {
	requestID := invocationID(ctx)
	return toResponse(requestID, a.journal.Handle(ctx, journal.Inbound{
		Method:    http.MethodPost,
		Body:      payload,
		Query:     url.Values{},
		Header:    http.Header{},
		RequestID: requestID,
	}))
}

func queryValues(event events.APIGatewayV2HTTPRequest) url.Values {
	if event.RawQueryString != "" {
		if values, err := url.ParseQuery(event.RawQueryString); err == nil {
			return values
		}
	}
	values := url.Values{}
	for k, v := range event.QueryStringParameters {
		values.Set(k, v)
	}
	return values
}

func invocationID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

func toResponse(requestID string, resp journal.Response) events.APIGatewayV2HTTPResponse {
	headers := map[string]string{"Content-Type": contentTypeJSON}
	if requestID != "" {
		headers["X-Request-ID"] = requestID
	}
	for k, v := range resp.Header {
		headers[k] = v
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       string(resp.Body),
	}
}
