package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// DefaultMaxResponseBytes caps the size of a webhook reply.
const DefaultMaxResponseBytes = 1 << 20

// HTTPInvoker calls webhooks over HTTP. Deadlines come from the caller's context.
type HTTPInvoker struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// HTTPOption configures the HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPInvoker) {
		if c != nil {
			h.client = c
		}
	}
}

// WithMaxResponseBytes caps the reply size.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(h *HTTPInvoker) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPInvoker) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPInvoker creates an invoker.
func NewHTTPInvoker(opts ...HTTPOption) *HTTPInvoker {
	h := &HTTPInvoker{
		client:   &http.Client{},
		maxBytes: DefaultMaxResponseBytes,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke posts req to the webhook URL and parses the reply.
func (h *HTTPInvoker) Invoke(ctx context.Context, wh *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error) {
	if wh.URL == "" {
		return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID, Message: "no url configured"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range wh.Headers {
		httpReq.Header.Set(k, v)
	}

	h.logger.Debug("Calling webhook", "webhook", wh.ID, "url", wh.URL, "request_id", req.RequestID, "tag", req.Tag)
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(wh.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(wh.ID, err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, &domain.WebhookError{Kind: domain.WebhookInvalidResponse, Webhook: wh.ID, Status: resp.StatusCode,
			Message: fmt.Sprintf("response exceeds %d bytes", h.maxBytes)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.WebhookError{Kind: domain.WebhookApplicationError, Webhook: wh.ID, Status: resp.StatusCode,
			Message: errorMessage(data)}
	}
	return ParseResponse(wh.ID, data)
}

func classifyTransportError(webhookID string, err error) *domain.WebhookError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.WebhookError{Kind: domain.WebhookTimeout, Webhook: webhookID, Err: err}
	}
	return &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: webhookID, Err: err}
}

// errorMessage extracts {"error": "..."} or {"error": {"message": "..."}} from a reply.
func errorMessage(data []byte) string {
	if !gjson.ValidBytes(data) {
		return strings.TrimSpace(string(truncate(data, 200)))
	}
	e := gjson.GetBytes(data, "error")
	if msg := e.Get("message"); msg.Exists() {
		return msg.String()
	}
	return e.String()
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// ParseResponse decodes a webhook reply body. An "error" member is reported as an
// application error even on a 2xx status.
func ParseResponse(webhookID string, data []byte) (*domain.WebhookResponse, error) {
	invalid := func(format string, args ...any) error {
		return &domain.WebhookError{Kind: domain.WebhookInvalidResponse, Webhook: webhookID, Message: fmt.Sprintf(format, args...)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &domain.WebhookResponse{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, invalid("body is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, invalid("body is not a JSON object")
	}
	if e := root.Get("error"); e.Exists() && e.Type != gjson.Null {
		return nil, &domain.WebhookError{Kind: domain.WebhookApplicationError, Webhook: webhookID, Message: errorMessage(data)}
	}

	out := &domain.WebhookResponse{}
	if msgs := root.Get("fulfillment_response.messages"); msgs.Exists() {
		if !msgs.IsArray() {
			return nil, invalid("fulfillment_response.messages must be an array")
		}
		if err := json.Unmarshal([]byte(msgs.Raw), &out.Messages); err != nil {
			return nil, invalid("bad messages: %v", err)
		}
	}
	if params := root.Get("session_info.parameters"); params.Exists() {
		m, ok := params.Value().(map[string]any)
		if !ok {
			return nil, invalid("session_info.parameters must be an object")
		}
		out.Parameters = m
	}
	for _, name := range root.Get(`page_info.form_info.parameter_info.#(state=="INVALID")#.display_name`).Array() {
		out.InvalidParameters = append(out.InvalidParameters, name.String())
	}

	page, flow := root.Get("target_page"), root.Get("target_flow")
	switch {
	case page.Exists() && flow.Exists():
		return nil, invalid("target_page and target_flow are mutually exclusive")
	case page.Exists():
		if page.String() == "" {
			return nil, invalid("empty target_page")
		}
		out.Target = domain.PageTarget(page.String())
	case flow.Exists():
		out.Target = domain.FlowTarget(flow.String())
	}

	if payload := root.Get("payload"); payload.Exists() {
		m, ok := payload.Value().(map[string]any)
		if !ok {
			return nil, invalid("payload must be an object")
		}
		out.Payload = m
	}
	return out, nil
}
