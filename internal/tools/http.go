package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// HTTPConfig configures the api_call tool.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// APICallTool implements the "api_call" tool: an outbound HTTP request
// with method, headers, body, auth, and redirect control. The request is
// aborted when the step deadline fires.
type APICallTool struct {
	config HTTPConfig
}

// NewAPICallTool creates a new api_call tool.
func NewAPICallTool(cfg HTTPConfig) *APICallTool {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &APICallTool{config: cfg}
}

func (t *APICallTool) Name() string          { return "api_call" }
func (t *APICallTool) Category() string      { return "network" }
func (t *APICallTool) Permissions() []string { return []string{"network:outbound"} }

func (t *APICallTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "url", Type: ParamString, Required: true, Description: "Request URL (http or https)."},
		{Name: "method", Type: ParamString, Default: "GET",
			Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}},
		{Name: "headers", Type: ParamObject},
		{Name: "body", Description: "Request body; JSON-encoded unless body_encoding says otherwise."},
		{Name: "body_encoding", Type: ParamString, Default: "json",
			Enum: []string{"json", "form", "text"}},
		{Name: "auth", Type: ParamObject},
		{Name: "timeout_ms", Type: ParamNumber, Min: fptr(1), Max: fptr(300_000)},
		{Name: "follow_redirects", Type: ParamBoolean, Default: true},
		{Name: "max_redirects", Type: ParamNumber, Default: 10, Min: fptr(0), Max: fptr(50)},
		{Name: "fail_on_error_status", Type: ParamBoolean, Default: false},
	}
}

func (t *APICallTool) Validate(params map[string]any) error {
	rawURL := stringParam(params, "url", "")
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "api_call: invalid url %q", rawURL)
	}
	return nil
}

func (t *APICallTool) Execute(ctx context.Context, params map[string]any, _ *schema.ExecutionContext) (map[string]any, error) {
	method := strings.ToUpper(stringParam(params, "method", "GET"))
	rawURL := stringParam(params, "url", "")
	bodyEncoding := stringParam(params, "body_encoding", "json")
	followRedirects := boolParam(params, "follow_redirects", true)
	maxRedirects := intParam(params, "max_redirects", 10)
	failOnErrorStatus := boolParam(params, "fail_on_error_status", false)

	timeout := t.config.DefaultTimeout
	if ms := intParam(params, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	var bodyReader io.Reader
	var contentType string
	if rawBody, ok := params["body"]; ok && rawBody != nil {
		switch bodyEncoding {
		case "form":
			if formData, ok := rawBody.(map[string]any); ok {
				vals := url.Values{}
				for k, v := range formData {
					vals.Set(k, fmt.Sprintf("%v", v))
				}
				bodyReader = strings.NewReader(vals.Encode())
				contentType = "application/x-www-form-urlencoded"
			}
		case "text":
			bodyReader = strings.NewReader(fmt.Sprintf("%v", rawBody))
			contentType = "text/plain"
		default: // json
			b, err := json.Marshal(rawBody)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "api_call: failed to marshal body as JSON").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "api_call: failed to create request").WithCause(err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if hdrs, ok := params["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	if auth, ok := params["auth"].(map[string]any); ok {
		switch stringParam(auth, "type", "") {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+stringParam(auth, "token", ""))
		case "basic":
			req.SetBasicAuth(stringParam(auth, "username", ""), stringParam(auth, "password", ""))
		case "api_key":
			if name := stringParam(auth, "header_name", ""); name != "" {
				req.Header.Set(name, stringParam(auth, "header_value", ""))
			}
		}
	}

	// New client per call to avoid mutating shared redirect policy.
	client := &http.Client{Transport: http.DefaultTransport}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if maxRedirects > 0 {
		limit := maxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "api_call: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "api_call: failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	if len(bodyBytes) == 0 {
		parsedBody = nil
	} else if strings.Contains(respContentType, "application/json") {
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	} else {
		parsedBody = string(bodyBytes)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	out := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if failOnErrorStatus && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "api_call: server returned %d", resp.StatusCode).
			WithDetails(out)
	}

	return out, nil
}

// DefaultTimeoutMs advises the engine when the step declares no timeout.
func (t *APICallTool) DefaultTimeoutMs() int64 {
	return t.config.DefaultTimeout.Milliseconds()
}

// Retryable marks api_call as safe to retry under a retry strategy.
func (t *APICallTool) Retryable() bool { return true }

var (
	_ Tool     = (*APICallTool)(nil)
	_ Advisory = (*APICallTool)(nil)
)
