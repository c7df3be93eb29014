package capture

import (
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(body string, headers map[string]string) *http.Response {
	h := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	for k, v := range headers {
		h[k] = v
	}
	return &http.Response{StatusCode: 201, Headers: h, Body: []byte(body)}
}

func TestExtract_Body(t *testing.T) {
	resp := jsonResponse(`{"id": 101, "score": 1.5, "user": {"email": "a@b.test"}, "tags": ["x"]}`, nil)
	e := NewExtractor(resp)

	v, err := e.Extract(parser.CaptureFromBody("postId", "id"))
	require.NoError(t, err)
	assert.Equal(t, int64(101), v)

	v, err = e.Extract(parser.CaptureFromBody("score", "score"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = e.Extract(parser.CaptureFromBody("email", "user.email"))
	require.NoError(t, err)
	assert.Equal(t, "a@b.test", v)

	v, err = e.Extract(parser.CaptureFromBody("tags", "tags"))
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, v)
}

func TestExtract_BodyBracketPath(t *testing.T) {
	e := NewExtractor(jsonResponse(`[{"id": 55}, {"id": 60, "tags": ["a", "b"]}]`, nil))

	v, err := e.Extract(parser.CaptureFromBody("first", "[0].id"))
	require.NoError(t, err)
	assert.Equal(t, int64(55), v)

	v, err = e.Extract(parser.CaptureFromBody("tag", "[1].tags[1]"))
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = e.Extract(parser.CaptureFromBody("missing", "[2].id"))
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestExtract_BodyFieldMissing(t *testing.T) {
	e := NewExtractor(jsonResponse(`{"title": "x"}`, nil))

	_, err := e.Extract(parser.CaptureFromBody("postId", "id"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFieldNotFound))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "postId", ce.Name)
	assert.Contains(t, err.Error(), "field not found")
}

func TestExtract_NonJSONBody(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Headers: map[string]string{"Content-Type": "text/html"}, Body: []byte(`<p>hi</p>`)}

	_, err := NewExtractor(resp).Extract(parser.CaptureFromBody("id", "id"))
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestExtract_MalformedJSONBody(t *testing.T) {
	_, err := NewExtractor(jsonResponse(`{"id": `, nil)).Extract(parser.CaptureFromBody("id", "id"))
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestExtract_HeaderWithPattern(t *testing.T) {
	resp := jsonResponse(`{}`, map[string]string{"Location": "http://localhost:3000/posts/101"})
	e := NewExtractor(resp)

	v, err := e.Extract(parser.CaptureFromHeader("postId", "location", parser.ResourceIDPattern("posts")))
	require.NoError(t, err)
	assert.Equal(t, "101", v)

	v, err = e.Extract(parser.CaptureFromHeader("loc", "Location", nil))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/posts/101", v)
}

func TestExtract_HeaderFailures(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		errMsg  string
	}{
		{"absent", nil, "field not found"},
		{"empty", map[string]string{"Location": ""}, "field not found"},
		{"no match", map[string]string{"Location": "/posts/abc"}, "does not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(jsonResponse(`{}`, tt.headers))
			_, err := e.Extract(parser.CaptureFromHeader("postId", "Location", parser.ResourceIDPattern("posts")))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFieldNotFound)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExtractAll(t *testing.T) {
	resp := jsonResponse(`{"id": 5}`, map[string]string{"Location": "/posts/5"})

	values, err := ExtractAll(resp, []*parser.Capture{
		parser.CaptureFromBody("bodyId", "id"),
		parser.CaptureFromHeader("headerId", "Location", parser.LocationIDPattern),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"bodyId": int64(5), "headerId": "5"}, values)

	values, err = ExtractAll(resp, []*parser.Capture{
		parser.CaptureFromBody("bodyId", "id"),
		parser.CaptureFromBody("missing", "nope"),
		parser.CaptureFromBody("never", "id"),
	})
	require.Error(t, err)
	assert.Equal(t, map[string]any{"bodyId": int64(5)}, values)
}
