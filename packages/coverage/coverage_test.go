package coverage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/contractspec/packages/catalog"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
	"github.com/abdul-hamid-achik/contractspec/packages/fakeapi"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
)

func postsAnalyzer() *Analyzer {
	a := NewAnalyzer(WithPathRewrite(fakeapi.UnguardedPath))
	for _, r := range fakeapi.NewServer().Routes() {
		a.AddEndpoint(Endpoint{Method: r.Method, Path: r.PathPattern})
	}
	return a
}

func TestAnalyzer_Analyze_BasicCoverage(t *testing.T) {
	analyzer := NewAnalyzer()
	analyzer.AddEndpoint(Endpoint{Method: "GET", Path: "/users", OperationID: "getUsers", Tags: []string{"users"}})
	analyzer.AddEndpoint(Endpoint{Method: "POST", Path: "/users", OperationID: "createUser", Tags: []string{"users"}})
	analyzer.AddEndpoint(Endpoint{Method: "GET", Path: "/users/{id}", OperationID: "getUser", Tags: []string{"users"}})
	analyzer.AddEndpoint(Endpoint{Method: "delete", Path: "/users/{id}", OperationID: "deleteUser", Tags: []string{"users"}})

	requests := []ExecutedRequest{
		{Method: "GET", Path: "/users"},
		{Method: "POST", Path: "/users"},
	}

	report := analyzer.Analyze(requests)

	if report.TotalEndpoints != 4 {
		t.Errorf("expected 4 total endpoints, got %d", report.TotalEndpoints)
	}

	if report.CoveredEndpoints != 2 {
		t.Errorf("expected 2 covered endpoints, got %d", report.CoveredEndpoints)
	}

	if report.CoveragePercent != 50.0 {
		t.Errorf("expected 50%% coverage, got %.1f%%", report.CoveragePercent)
	}

	if got := report.ByTag["users"].CoveredEndpoints; got != 2 {
		t.Errorf("expected 2 covered users endpoints, got %d", got)
	}
}

func TestAnalyzer_Analyze_PathParameters(t *testing.T) {
	analyzer := NewAnalyzer()
	analyzer.AddEndpoint(Endpoint{Method: "GET", Path: "/users/{id}"})
	analyzer.AddEndpoint(Endpoint{Method: "GET", Path: "/users/{id}/posts/{postId}"})

	requests := []ExecutedRequest{
		{Method: "GET", Path: "/users/123"},
		{Method: "GET", Path: "/users/456/posts/789"},
		{Method: "GET", Path: "/users/456/comments"},
	}

	report := analyzer.Analyze(requests)

	if report.CoveredEndpoints != 2 {
		t.Errorf("expected 2 covered endpoints, got %d", report.CoveredEndpoints)
	}

	if len(report.Unmatched) != 1 || report.Unmatched[0].Path != "/users/456/comments" {
		t.Errorf("expected one unmatched request, got %v", report.Unmatched)
	}
}

func TestRequestsFromScenarios(t *testing.T) {
	scenarios := []*parser.Scenario{
		{Name: "a", Request: parser.RequestSpec{Method: "GET", Path: "/posts?_limit=10"}},
		{Name: "b", Request: parser.RequestSpec{Method: "PUT", Path: "/posts/{{postId}}"}},
	}

	got := RequestsFromScenarios(scenarios)

	want := []ExecutedRequest{{Method: "GET", Path: "/posts"}, {Method: "PUT", Path: "/posts/_"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCatalogCoversFakeAPI(t *testing.T) {
	report := postsAnalyzer().Analyze(RequestsFromScenarios(catalog.PostsScenarios()))

	covered := map[string]bool{}
	for _, e := range report.Endpoints {
		covered[e.Method+" "+e.Path] = e.Covered
	}

	for _, key := range []string{"GET /posts", "POST /posts", "PUT /posts/{id}", "DELETE /posts/{id}"} {
		if !covered[key] {
			t.Errorf("expected %s to be covered", key)
		}
	}
	if covered["GET /posts/{id}"] {
		t.Error("no posts scenario reads a single post")
	}
	if len(report.Unmatched) != 0 {
		t.Errorf("guarded paths should match after rewrite, unmatched: %v", report.Unmatched)
	}
}

func TestRequestsFromRun(t *testing.T) {
	result := &runner.RunResult{Results: []*runner.ScenarioResult{
		{Name: "list", Request: &http.Request{Method: "GET", URL: "http://localhost:3000/posts?_limit=10"}},
		{Name: "skipped"},
	}}

	got := RequestsFromRun(result)

	if len(got) != 1 || got[0].Path != "/posts" {
		t.Errorf("expected one request to /posts, got %v", got)
	}
}

func TestLoadOpenAPI(t *testing.T) {
	doc := `openapi: 3.0.0
paths:
  /posts:
    get: {operationId: listPosts, tags: [posts]}
    post: {operationId: createPost, tags: [posts]}
  /posts/{id}:
    put: {operationId: updatePost, tags: [posts]}
`
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	analyzer := NewAnalyzer()
	if err := analyzer.LoadOpenAPI(path); err != nil {
		t.Fatalf("LoadOpenAPI: %v", err)
	}
	if n := len(analyzer.Endpoints()); n != 3 {
		t.Fatalf("expected 3 endpoints, got %d", n)
	}

	report := analyzer.Analyze([]ExecutedRequest{{Method: "PUT", Path: "/posts/7"}})
	out := report.FormatConsole()
	if !strings.Contains(out, "[x] PUT /posts/{id}") {
		t.Errorf("expected PUT /posts/{id} covered, got:\n%s", out)
	}
	if !strings.Contains(out, "posts: 1/3") {
		t.Errorf("expected tag summary, got:\n%s", out)
	}
}

func TestLoadOpenAPI_NoPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte(`{"openapi": "3.0.0"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewAnalyzer().LoadOpenAPI(path); err == nil {
		t.Error("expected an error for a document without paths")
	}
}

func TestReport_FormatJSON(t *testing.T) {
	report := postsAnalyzer().Analyze(nil)
	out, err := report.FormatJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"coveragePercent": 0`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}
