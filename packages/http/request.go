package http

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  strings.ToUpper(method),
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

// SetJSONBody marshals v as the request body. Content-Type is set to
// application/json unless the caller already chose one.
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	r.Body = data
	if r.header("Content-Type") == "" {
		r.Headers["Content-Type"] = "application/json"
	}
	return nil
}

func (r *Request) header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// JoinURL appends a path (which may carry its own query string) to a base URL
// without doubling or dropping the separating slash. Absolute URLs in path are
// returned unchanged.
func JoinURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
