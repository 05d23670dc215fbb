package handlers

import (
	"net/http"

	"github.com/Conceptual-Machines/daytale-api/internal/journal"
	"github.com/gin-gonic/gin"
)

// GenerateHandler adapts gin requests onto the journal handler
type GenerateHandler struct {
	journal *journal.Handler
}

func NewGenerateHandler(h *journal.Handler) *GenerateHandler {
	return &GenerateHandler{journal: h}
}

// Generate handles every method on /api/generate. Method checks, body
// decoding and error mapping all happen in the journal handler.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body any
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		body = c.Request.Body
	}

	resp := h.journal.Handle(c.Request.Context(), journal.Inbound{
		Method:    c.Request.Method,
		Body:      body,
		Query:     c.Request.URL.Query(),
		Header:    c.Request.Header,
		RequestID: c.GetString("request_id"),
	})

	for k, v := range resp.Header {
		c.Header(k, v)
	}
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}
