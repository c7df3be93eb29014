package catalog

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
	"github.com/abdul-hamid-achik/contractspec/packages/fakeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFakeAPI(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()
	s := fakeapi.NewServer(fakeapi.WithLogger(log.New(io.Discard, "", 0)))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func run(t *testing.T, baseURL string, scenarios []*parser.Scenario, opts ...runner.Option) *runner.RunResult {
	t.Helper()
	r := runner.NewRegistry(append([]runner.Option{runner.WithBaseURL(baseURL)}, opts...)...)
	require.NoError(t, r.RegisterAll(scenarios))
	return r.RunAll(context.Background())
}

func requireAllPassed(t *testing.T, result *runner.RunResult) {
	t.Helper()
	for _, res := range result.Results {
		assert.Equal(t, runner.Passed, res.Outcome, "%s: %s", res.Name, res.Reason)
	}
}

func TestScenarios_AreValid(t *testing.T) {
	assert.NoError(t, parser.Validate(PostsScenarios()))
	assert.NoError(t, parser.Validate(All(builtin.NewProvider(1))))
}

func TestPostsScenarios_PassAgainstFakeAPI(t *testing.T) {
	_, url := startFakeAPI(t)

	result := run(t, url, PostsScenarios())

	require.Len(t, result.Results, len(PostsScenarios()))
	requireAllPassed(t, result)
	assert.Equal(t, 12, result.Passed)
}

func TestAll_PassAgainstFakeAPI(t *testing.T) {
	_, url := startFakeAPI(t)

	result := run(t, url, All(builtin.NewProvider(42)))

	requireAllPassed(t, result)
	assert.True(t, result.OK())
}

func TestIndependentScenarios_OrderDoesNotMatter(t *testing.T) {
	independent := []string{ListPosts, FirstTenPosts, PostsByID, CreateOnProtected, UpdateMissingPost, DeleteMissingPost}

	pick := func(names []string) []*parser.Scenario {
		byName := make(map[string]*parser.Scenario)
		for _, s := range PostsScenarios() {
			byName[s.Name] = s
		}
		out := make([]*parser.Scenario, len(names))
		for i, n := range names {
			out[i] = byName[n]
		}
		return out
	}
	reversed := make([]string, len(independent))
	for i, n := range independent {
		reversed[len(independent)-1-i] = n
	}

	_, url := startFakeAPI(t)
	forward := run(t, url, pick(independent))
	backward := run(t, url, pick(reversed))

	for _, name := range independent {
		f, ok := forward.Result(name)
		require.True(t, ok)
		b, ok := backward.Result(name)
		require.True(t, ok)
		assert.Equal(t, f.Outcome, b.Outcome, name)
		assert.Equal(t, f.Response.StatusCode, b.Response.StatusCode, name)
	}
}

func TestReadScenario_IsIdempotent(t *testing.T) {
	_, url := startFakeAPI(t)
	limit := PostsScenarios()[1]
	require.Equal(t, FirstTenPosts, limit.Name)

	first := run(t, url, []*parser.Scenario{limit})
	second := run(t, url, []*parser.Scenario{limit})

	assert.Equal(t, runner.Passed, first.Results[0].Outcome)
	assert.Equal(t, first.Results[0].Outcome, second.Results[0].Outcome)
	assert.Equal(t, first.Results[0].Response.Body, second.Results[0].Response.Body)
}

func TestUpdateCreatedPost_RoundTrip(t *testing.T) {
	s, url := startFakeAPI(t)

	scenarios := PostsScenarios()
	pair := []*parser.Scenario{scenarios[6], scenarios[7]}
	require.Equal(t, UpdateCreatedPost, pair[1].Name)
	result := run(t, url, pair)
	requireAllPassed(t, result)

	id := result.Results[0].Captures["locationPostId"]
	require.NotNil(t, id)
	update := result.Results[1]
	assert.Equal(t, "/posts/"+id.(string), update.Request.URL[len(url):])

	stored, err := s.Store().Post(fakeapi.DefaultPosts + 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated Post Title", stored["title"])
	assert.Equal(t, "Updated Post Body", stored["body"])
	assert.Equal(t, 1, stored["userId"])
}

func TestCapture_MissingLocationIsCaptureFailure(t *testing.T) {
	// Creates succeed but never say where the post went.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"title": "New Post Title"}`)
	}))
	defer server.Close()

	scenarios := PostsScenarios()
	pair := []*parser.Scenario{scenarios[6], scenarios[7]}
	result := run(t, server.URL, pair)

	assert.Equal(t, runner.Failed, result.Results[0].Outcome)
	assert.Equal(t, runner.FailureCapture, result.Results[0].Kind)
	assert.Contains(t, result.Results[0].Reason, "field not found")
	assert.Equal(t, runner.Skipped, result.Results[1].Outcome)

	entity := []*parser.Scenario{scenarios[9], scenarios[10], scenarios[11]}
	result = run(t, server.URL, entity)
	assert.Equal(t, runner.FailureAssertion, result.Results[0].Kind, "the id assertion fails before the capture")
	assert.Equal(t, 2, result.Skipped)
}

func TestAuthScenarios_RegisterThenLogin(t *testing.T) {
	s, url := startFakeAPI(t)
	creds := NewCredentials(builtin.NewProvider(7))

	result := run(t, url, AuthScenariosFor(creds))
	requireAllPassed(t, result)

	register, _ := result.Result(RegisterUser)
	login, _ := result.Result(LoginUser)
	assert.Equal(t, 201, register.Response.StatusCode)
	assert.Equal(t, 200, login.Response.StatusCode)
	assert.Equal(t, int64(1), register.Captures["userId"])
	assert.NotEmpty(t, login.Captures["accessToken"])

	email, err := s.Store().Authenticate(login.Captures["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, creds.Email, email)
}

func protectedScenarios(scenarios []*parser.Scenario) []*parser.Scenario {
	var out []*parser.Scenario
	for _, s := range scenarios {
		if strings.HasPrefix(s.Request.Path, "/664/") {
			out = append(out, s)
		}
	}
	return out
}

func TestProtectedRoute_HasOneScenario(t *testing.T) {
	protected := protectedScenarios(All(builtin.NewProvider(7)))
	require.Len(t, protected, 1)
	assert.Equal(t, CreateOnProtected, protected[0].Name)
	assert.True(t, protected[0].Expect.Status.Match(401))

	var fromFiles []*parser.Scenario
	for _, file := range []string{"posts.yaml", "auth.yaml"} {
		suite, err := parser.ParseFile(filepath.Join("..", "..", "scenarios", file))
		require.NoError(t, err)
		fromFiles = append(fromFiles, protectedScenarios(suite.Scenarios)...)
	}
	require.Len(t, fromFiles, 1)
	assert.True(t, fromFiles[0].Expect.Status.Match(401))
}

func TestAuthScenarios_LoginSkippedWhenRegisterFails(t *testing.T) {
	s, url := startFakeAPI(t)
	creds := NewCredentials(builtin.NewProvider(7))

	_, _, err := s.Store().Register(fakeapi.Record{"email": creds.Email, "password": "taken!"})
	require.NoError(t, err)

	result := run(t, url, AuthScenariosFor(creds))

	assert.Equal(t, runner.Failed, result.Results[0].Outcome)
	assert.Equal(t, "assertion: status: expected 201, got 400", result.Results[0].Reason)
	require.Len(t, result.Results, 2)
	assert.Equal(t, runner.Skipped, result.Results[1].Outcome)
}

func TestNewCredentials(t *testing.T) {
	a := NewCredentials(builtin.NewProvider(99))
	b := NewCredentials(builtin.NewProvider(99))

	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a.Age, MinAge)
	assert.LessOrEqual(t, a.Age, MaxAge)
	assert.Contains(t, a.Email, "@")

	// Credentials are drawn once, so register and login agree.
	scenarios := AuthScenarios(builtin.NewProvider(99))
	assert.Equal(t, a.Email, scenarios[0].Request.Body.(map[string]any)["email"])
	assert.Equal(t, a.Email, scenarios[1].Request.Body.(map[string]any)["email"])
	assert.Equal(t, a.Password, scenarios[1].Request.Body.(map[string]any)["password"])
}

func TestYAMLScenarios_PassAgainstFakeAPI(t *testing.T) {
	_, url := startFakeAPI(t)

	for _, file := range []string{"posts.yaml", "auth.yaml"} {
		t.Run(file, func(t *testing.T) {
			suite, err := parser.ParseFile(filepath.Join("..", "..", "scenarios", file))
			require.NoError(t, err)

			r := runner.NewRegistry(runner.WithBaseURL(url), runner.WithProvider(builtin.NewProvider(3)))
			require.NoError(t, r.RegisterSuite(suite))
			result := r.RunAll(context.Background())

			assert.Equal(t, len(suite.Scenarios), result.Total())
			requireAllPassed(t, result)
		})
	}
}
