package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postsYAML = `
name: posts
variables:
  userId: 1
scenarios:
  - name: list posts
    tags: [posts, read]
    request:
      method: get
      path: /posts
    expect:
      status: 200
      headerPatterns:
        - {name: Content-Type, contains: application/json}

  - name: first ten posts
    request:
      method: GET
      path: /posts?_limit=10
    expect:
      status: 200
      body:
        - {path: "", length: 10}

  - name: posts 55 and 60
    request:
      method: GET
      path: /posts?id=55&id=60
    expect:
      status: 200
      body:
        - {path: "", field: id, includes: [55, 60]}

  - name: create post
    request:
      method: POST
      path: /posts
      headers: {Content-Type: application/json}
      body:
        title: New Post Title
        userId: "{{userId}}"
    expect:
      status: [200, 201]
      headers: [Location]
      headerPatterns:
        - {name: Location, matches: '/posts/\d+$'}
      body:
        - {path: id, type: number}
        - {path: title, equals: New Post Title}
    capture:
      - {name: postId, header: Location, pattern: '/posts/(\d+)$'}
      - {name: bodyId, body: id}

  - name: update post
    dependsOn: [create post]
    request:
      method: PUT
      path: /posts/{{postId}}
      body: {title: Updated}
    expect:
      status: 2xx
      body:
        - {path: title, equals: Updated}
`

func TestParse_Suite(t *testing.T) {
	suite, err := Parse([]byte(postsYAML), "posts.yaml")
	require.NoError(t, err)

	assert.Equal(t, "posts", suite.Name)
	assert.Equal(t, 1, suite.Variables["userId"])
	require.Len(t, suite.Scenarios, 5)

	list := suite.Scenarios[0]
	assert.Equal(t, "list posts", list.Name)
	assert.Equal(t, "GET", list.Request.Method)
	assert.Equal(t, []string{"posts", "read"}, list.Tags)
	assert.Equal(t, Status(200), list.Expect.Status)
	require.Len(t, list.Expect.HeaderPatterns, 1)
	assert.True(t, list.Expect.HeaderPatterns[0].Match("application/json; charset=utf-8"))

	limit := suite.Scenarios[1]
	require.Len(t, limit.Expect.Body, 1)
	assert.Equal(t, OpLength, limit.Expect.Body[0].Operator)
	assert.Equal(t, 10, limit.Expect.Body[0].Expected)

	ids := suite.Scenarios[2].Expect.Body[0]
	assert.Equal(t, OpIncludes, ids.Operator)
	assert.Equal(t, "id", ids.Field)
	assert.Equal(t, []any{55, 60}, ids.Expected)

	create := suite.Scenarios[3]
	assert.True(t, create.Expect.Status.Match(201))
	assert.False(t, create.Expect.Status.Match(202))
	assert.Equal(t, []string{"Location"}, create.Expect.Headers)
	assert.True(t, create.Expect.HeaderPatterns[0].Match("http://localhost:3000/posts/101"))
	assert.Equal(t, map[string]any{"title": "New Post Title", "userId": "{{userId}}"}, create.Request.Body)
	require.Len(t, create.Captures, 2)
	assert.Equal(t, CaptureHeader, create.Captures[0].Source)
	assert.NotNil(t, create.Captures[0].Pattern)
	assert.Equal(t, CaptureBody, create.Captures[1].Source)
	assert.Equal(t, "id", create.Captures[1].Path)

	update := suite.Scenarios[4]
	assert.Equal(t, []string{"create post"}, update.DependsOn)
	assert.Equal(t, StatusRange(200, 299), update.Expect.Status)
	assert.Greater(t, update.Line, create.Line)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(postsYAML), 0644))

	suite, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, suite.Path)
	assert.Len(t, suite.Scenarios, 5)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		errMsg  string
		wantErr error
	}{
		{
			name:   "empty document",
			input:  "",
			errMsg: "empty scenario file",
		},
		{
			name:   "unknown top-level field",
			input:  "name: x\nscenarioz: []\n",
			errMsg: "scenarioz",
		},
		{
			name: "invalid status",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect: {status: abc}`,
			errMsg: "invalid status",
		},
		{
			name: "two operators",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect:
      status: 200
      body:
        - {path: id, equals: 1, type: number}`,
			errMsg: "more than one operator",
		},
		{
			name: "no operator",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect:
      status: 200
      body:
        - {path: id}`,
			errMsg: "no operator",
		},
		{
			name: "bad regexp",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect:
      status: 200
      headerPatterns:
        - {name: Location, matches: '('}`,
			errMsg: "invalid pattern",
		},
		{
			name: "duplicate names",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect: {status: 200}
  - name: a
    request: {method: GET, path: /posts}
    expect: {status: 200}`,
			wantErr: ErrDuplicateName,
		},
		{
			name: "forward dependency",
			input: `scenarios:
  - name: a
    dependsOn: [b]
    request: {method: GET, path: /posts}
    expect: {status: 200}
  - name: b
    request: {method: GET, path: /posts}
    expect: {status: 200}`,
			wantErr: ErrUnknownDependency,
		},
		{
			name: "unsupported method",
			input: `scenarios:
  - name: a
    request: {method: PATCH, path: /posts}
    expect: {status: 200}`,
			wantErr: ErrInvalidScenario,
		},
		{
			name: "missing status",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}`,
			wantErr: ErrInvalidScenario,
		},
		{
			name: "capture without source",
			input: `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect: {status: 200}
    capture:
      - {name: id}`,
			errMsg: "needs 'body' or 'header'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), "test.yaml")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestParseError_Line(t *testing.T) {
	input := `scenarios:
  - name: a
    request: {method: GET, path: /posts}
    expect: {status: 200}
  - name: b
    request: {method: GET, path: /posts}
    expect: {status: nope}`

	_, err := Parse([]byte(input), "test.yaml")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 5, pe.Line)
	assert.Contains(t, pe.Error(), "test.yaml:5:")
}

func TestStatusExpectation(t *testing.T) {
	assert.True(t, Status(404).Match(404))
	assert.False(t, Status(404).Match(200))
	assert.True(t, StatusIn(200, 204).Match(204))
	assert.True(t, StatusRange(200, 299).Match(250))
	assert.False(t, StatusRange(200, 299).Match(300))
	assert.True(t, StatusExpectation{}.IsZero())

	assert.Equal(t, "201", Status(201).String())
	assert.Equal(t, "one of 200, 204", StatusIn(200, 204).String())
	assert.Equal(t, "200..299", StatusRange(200, 299).String())
}

func TestGJSONPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"[0].id", "0.id"},
		{"items[0].tags[1]", "items.0.tags.1"},
		{"user.name", "user.name"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, GJSONPath(tt.path))
		})
	}
}

func TestResourceIDPattern(t *testing.T) {
	re := ResourceIDPattern("posts")

	m := re.FindStringSubmatch("http://localhost:3000/posts/101")
	require.NotNil(t, m)
	assert.Equal(t, "101", m[re.SubexpIndex("id")])

	assert.Nil(t, re.FindStringSubmatch("/posts/abc"))
	assert.Nil(t, re.FindStringSubmatch("/users/12"))
	assert.NotNil(t, LocationIDPattern.FindStringSubmatch("/users/12"))
}

func TestValidate_DependencyOrder(t *testing.T) {
	a := &Scenario{Name: "a", Request: RequestSpec{Method: "GET", Path: "/"}, Expect: Expectation{Status: Status(200)}}
	b := &Scenario{Name: "b", DependsOn: []string{"a"}, Request: RequestSpec{Method: "GET", Path: "/"}, Expect: Expectation{Status: Status(200)}}

	assert.NoError(t, Validate([]*Scenario{a, b}))
	assert.ErrorIs(t, Validate([]*Scenario{b, a}), ErrUnknownDependency)
}
