package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	s := NewServer(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestServer_ListPosts(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/posts", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Len(t, decode[[]map[string]any](t, body), DefaultPosts)

	_, body = do(t, http.MethodGet, ts.URL+"/posts?_limit=10", nil)
	assert.Len(t, decode[[]map[string]any](t, body), 10)

	_, body = do(t, http.MethodGet, ts.URL+"/posts?id=55&id=60", nil)
	posts := decode[[]map[string]any](t, body)
	require.Len(t, posts, 2)
	assert.Equal(t, float64(55), posts[0]["id"])
	assert.Equal(t, float64(60), posts[1]["id"])

	_, body = do(t, http.MethodGet, ts.URL+"/posts?userId=2", nil)
	assert.Len(t, decode[[]map[string]any](t, body), 10)
}

func TestServer_CreateUpdateDelete(t *testing.T) {
	_, ts := newTestServer(t, WithPosts(3))

	resp, body := do(t, http.MethodPost, ts.URL+"/posts", map[string]any{"title": "t", "body": "b", "userId": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Regexp(t, `/posts/4$`, resp.Header.Get("Location"))
	created := decode[map[string]any](t, body)
	assert.Equal(t, float64(4), created["id"])

	resp, body = do(t, http.MethodPut, ts.URL+"/posts/4", map[string]any{"title": "u", "body": "v", "userId": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"id": float64(4), "title": "u", "body": "v", "userId": float64(1)}, decode[map[string]any](t, body))

	resp, _ = do(t, http.MethodDelete, ts.URL+"/posts/4", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/posts/4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_UnknownIDs(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/posts/non-existing-id", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/posts/non-existing-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/posts/9999", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, ts.URL+"/posts/1", map[string]any{})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_RejectsNonJSONWrites(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/posts", bytes.NewReader([]byte(`{"title":"x"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_GuardedRoute(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/664/posts", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrMissingToken.Error(), decode[string](t, body))

	resp, _ = do(t, http.MethodGet, ts.URL+"/664/posts?_limit=1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/664/posts", map[string]any{"title": "x"}, "Authorization", "Bearer bogus")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, body = do(t, http.MethodPost, ts.URL+"/register", map[string]any{"email": "a@b.test", "password": "secret1"})
	token := decode[authResponse](t, body).AccessToken

	resp, _ = do(t, http.MethodPost, ts.URL+"/664/posts", map[string]any{"title": "x"}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/660/posts", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/640/posts", map[string]any{"title": "x"}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_RegisterAndLogin(t *testing.T) {
	_, ts := newTestServer(t)

	creds := map[string]any{
		"email":     "jane.doe@example.test",
		"password":  "Secret123",
		"firstname": "Jane",
		"lastname":  "Doe",
		"age":       30,
	}

	resp, body := do(t, http.MethodPost, ts.URL+"/register", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	registered := decode[map[string]any](t, body)
	assert.NotEmpty(t, registered["accessToken"])
	user := registered["user"].(map[string]any)
	assert.Equal(t, float64(1), user["id"])
	assert.Equal(t, "jane.doe@example.test", user["email"])
	assert.Equal(t, float64(30), user["age"])
	assert.NotContains(t, user, "password")

	resp, _ = do(t, http.MethodPost, ts.URL+"/register", creds)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/login", map[string]any{"email": creds["email"], "password": creds["password"]})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loggedIn := decode[map[string]any](t, body)
	assert.NotEmpty(t, loggedIn["accessToken"])
	assert.Equal(t, user, loggedIn["user"])

	resp, body = do(t, http.MethodPost, ts.URL+"/login", map[string]any{"email": creds["email"], "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrIncorrectPassword.Error(), decode[string](t, body))
}

func TestServer_RegisterValidation(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want error
	}{
		{"missing password", map[string]any{"email": "a@b.test"}, ErrCredentialsMissing},
		{"bad email", map[string]any{"email": "nope", "password": "secret"}, ErrEmailFormat},
		{"short password", map[string]any{"email": "a@b.test", "password": "abc"}, ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want.Error(), decode[string](t, body))
		})
	}

	resp, _ := do(t, http.MethodPost, ts.URL+"/login", map[string]any{"email": "who@b.test", "password": "secret"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Reset(t *testing.T) {
	s, ts := newTestServer(t, WithPosts(2))

	do(t, http.MethodPost, ts.URL+"/posts", map[string]any{"title": "x"})
	assert.Len(t, s.Store().Posts(), 3)

	s.Reset()
	assert.Len(t, s.Store().Posts(), 2)
}

func TestRouter_Match(t *testing.T) {
	r := NewRouter()
	noop := func(http.ResponseWriter, *http.Request, map[string]string) {}
	r.Handle(http.MethodGet, "/posts/{id}", noop)
	r.Handle(http.MethodGet, "/a.b", noop)

	route, params, _ := r.Match("GET", "/posts/42/")
	require.NotNil(t, route)
	assert.Equal(t, "42", params["id"])

	route, _, allowed := r.Match("DELETE", "/posts/42")
	assert.Nil(t, route)
	assert.Equal(t, []string{"GET"}, allowed)

	route, _, _ = r.Match("GET", "/aXb")
	assert.Nil(t, route, "pattern text is literal")
}

func TestUnguardedPath(t *testing.T) {
	assert.Equal(t, "/posts", UnguardedPath("/664/posts"))
	assert.Equal(t, "/posts/1", UnguardedPath("/600/posts/1"))
	assert.Equal(t, "/posts", UnguardedPath("/posts"))
	assert.Equal(t, "/999/posts", UnguardedPath("/999/posts"))
}

func TestServerRoutes(t *testing.T) {
	routes := NewServer().Routes()

	var paths []string
	for _, r := range routes {
		paths = append(paths, r.Method+" "+r.PathPattern)
	}
	assert.Contains(t, paths, "GET /posts")
	assert.Contains(t, paths, "DELETE /posts/{id}")
	assert.Contains(t, paths, "POST /login")
}
