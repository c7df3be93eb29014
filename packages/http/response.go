package http

import (
	"encoding/json"
	"strings"
	"time"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// JSON returns the decoded body when the content type indicates JSON and the
// body parses. The second result is false otherwise.
func (r *Response) JSON() (any, bool) {
	if !r.IsJSON() || len(r.Body) == 0 {
		return nil, false
	}
	v, err := r.BodyJSON()
	if err != nil {
		return nil, false
	}
	return v, true
}

// Header looks a header up by name, ignoring case.
func (r *Response) Header(key string) string {
	v, _ := r.LookupHeader(key)
	return v
}

// LookupHeader is like Header but distinguishes an absent header from an
// empty one.
func (r *Response) LookupHeader(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := strings.ToLower(r.ContentType())
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
