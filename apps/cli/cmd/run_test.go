package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/catalog"
	"github.com/abdul-hamid-achik/contractspec/packages/core/config"
	"github.com/abdul-hamid-achik/contractspec/packages/fakeapi"
	"github.com/abdul-hamid-achik/contractspec/packages/history"
	"github.com/abdul-hamid-achik/contractspec/packages/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readPostYAML = `name: read
variables:
  baseUrl: http://127.0.0.1:1
scenarios:
  - name: read post
    request: {method: GET, path: /posts/1}
    expect:
      status: 200
      body:
        - {path: id, equals: 1}
`

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fakeapi.NewServer().Handler())
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %v", err)
	return exitErr.Code
}

func TestRunPlan_Builtin(t *testing.T) {
	srv := newFakeAPI(t)
	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Seed = 7

	var buf bytes.Buffer
	plan := &runPlan{cfg: cfg, builtin: true, out: &buf}
	results, err := plan.execute(context.Background(), output.NewJSONFormatter(output.JSONWithWriter(&buf)))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, BuiltinSource, results[0].Source)
	assert.Equal(t, len(catalog.All(builtin.NewProvider(7))), results[0].Passed)
	assert.Zero(t, countFailed(results))
}

func TestRunPlan_EnvironmentOverridesSuiteVariables(t *testing.T) {
	srv := newFakeAPI(t)
	path := writeFile(t, t.TempDir(), "read.yaml", readPostYAML)

	var buf bytes.Buffer
	plan := &runPlan{
		cfg:       config.DefaultConfig(),
		files:     []string{path},
		variables: map[string]any{"baseUrl": srv.URL},
		out:       &buf,
	}
	formatter := output.NewConsoleFormatter(output.WithWriter(&buf), output.WithNoColor(true))
	results, err := plan.execute(context.Background(), formatter)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Passed, buf.String())
	assert.Contains(t, buf.String(), "Running: "+path)
	assert.Contains(t, buf.String(), "✓ read post")
}

func TestRunPlan_ParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "scenarios:\n  - name: x\n    request: {method: PATCH, path: /}\n")

	plan := &runPlan{cfg: config.DefaultConfig(), files: []string{path}, out: &bytes.Buffer{}}
	_, err := plan.execute(context.Background(), output.NewJSONFormatter(output.JSONWithWriter(&bytes.Buffer{})))
	require.Error(t, err)
	assert.Equal(t, ExitParseError, exitCode(t, err))
}

func TestRunPlan_DryRun(t *testing.T) {
	var buf bytes.Buffer
	plan := &runPlan{cfg: config.DefaultConfig(), builtin: true, dryRun: true, out: &buf}

	results, err := plan.execute(context.Background(), output.NewJSONFormatter(output.JSONWithWriter(&bytes.Buffer{})))
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Contains(t, buf.String(), "Would run: "+catalog.ListPosts+" (GET /posts)")
}

func TestRunPlan_RecordsHistory(t *testing.T) {
	srv := newFakeAPI(t)
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	plan := &runPlan{cfg: cfg, builtin: true, history: store, out: &bytes.Buffer{}}
	results, err := plan.execute(context.Background(), output.NewJSONFormatter(output.JSONWithWriter(&bytes.Buffer{})))
	require.NoError(t, err)
	require.Len(t, results, 1)

	run, err := store.Run(context.Background(), results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, results[0].Passed, run.Passed)

	outcomes, err := store.Outcomes(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, outcomes, results[0].Total())
}

func TestRunPlan_FailedScenarioCounts(t *testing.T) {
	srv := newFakeAPI(t)
	path := writeFile(t, t.TempDir(), "wrong.yaml", `name: wrong
scenarios:
  - name: expect teapot
    request: {method: GET, path: /posts/1}
    expect: {status: 418}
`)
	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL

	plan := &runPlan{cfg: cfg, files: []string{path}, out: &bytes.Buffer{}}
	results, err := plan.execute(context.Background(), output.NewJUnitFormatter(output.JUnitWithWriter(&bytes.Buffer{})))
	require.NoError(t, err)
	assert.Equal(t, 1, countFailed(results))
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", readPostYAML)
	writeFile(t, dir, "b.yml", readPostYAML)
	writeFile(t, dir, "notes.txt", "ignored")

	files, err := collectFiles([]string{dir})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = collectFiles([]string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"smoke", "auth"}, splitList(" smoke, ,auth "))
	assert.Nil(t, splitList(""))
}

func TestNewFormatter(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, format := range []string{"", "console", "json", "JUnit"} {
		f, err := newFormatter(format, &bytes.Buffer{}, cfg)
		require.NoError(t, err, format)
		assert.NotNil(t, f)
	}
	_, err := newFormatter("tap", &bytes.Buffer{}, cfg)
	assert.Error(t, err)
}

func TestExecute_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "scenarios: [")
	good := writeFile(t, filepath.Join(dir), "good.yaml", readPostYAML)

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"validate", good})
	assert.Equal(t, ExitSuccess, execute())

	rootCmd.SetArgs([]string{"validate", bad})
	assert.Equal(t, ExitParseError, execute())

	rootCmd.SetArgs([]string{"no-such-command"})
	assert.Equal(t, ExitUsageError, execute())
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := exitWith(ExitConfigError, inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "exit status 1", exitWith(ExitTestFailure, nil).Error())
}
