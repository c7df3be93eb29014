package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{
			name:     "simple key-value",
			content:  "baseUrl=http://localhost:3000",
			expected: map[string]string{"baseUrl": "http://localhost:3000"},
		},
		{
			name:     "export prefix",
			content:  "export TOKEN=abc",
			expected: map[string]string{"TOKEN": "abc"},
		},
		{
			name:     "double quoted value with escapes",
			content:  `MSG="line one\nsaid \"hi\""`,
			expected: map[string]string{"MSG": "line one\nsaid \"hi\""},
		},
		{
			name:     "single quoted value is literal",
			content:  `MSG='keep \n # this'`,
			expected: map[string]string{"MSG": `keep \n # this`},
		},
		{
			name:     "comments and blank lines",
			content:  "# comment\n\nA=1 # trailing\nB=2",
			expected: map[string]string{"A": "1", "B": "2"},
		},
		{
			name:     "value containing equals",
			content:  "QUERY=a=b&c=d",
			expected: map[string]string{"QUERY": "a=b&c=d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars, err := LoadDotEnv(writeEnvFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, vars)
		})
	}
}

func TestLoadDotEnv_Errors(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	_, err = LoadDotEnv(writeEnvFile(t, "A=1\nnot a pair"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2: expected KEY=value")

	_, err = LoadDotEnv(writeEnvFile(t, "=value"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty key")
}

func TestLoadEnvironment(t *testing.T) {
	configEnvs := map[string]map[string]any{
		"local":   {"baseUrl": "http://localhost:3000", "userId": 1},
		"staging": {"baseUrl": "https://staging.example.com"},
	}
	dotEnv := writeEnvFile(t, "baseUrl=http://127.0.0.1:4000")

	env, err := LoadEnvironment("local", configEnvs)
	require.NoError(t, err)
	assert.Equal(t, "local", env.Name)
	assert.Equal(t, "http://localhost:3000", env.Variables["baseUrl"])
	assert.Equal(t, 1, env.Variables["userId"])

	env, err = LoadEnvironment("local", configEnvs, dotEnv)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4000", env.Variables["baseUrl"])

	env, err = LoadEnvironment("unknown", configEnvs, "")
	require.NoError(t, err)
	assert.Empty(t, env.Variables)
}

func TestLoadSystemEnv(t *testing.T) {
	t.Setenv("CONTRACTSPEC_VAR_baseUrl", "http://x")

	vars := LoadSystemEnv("CONTRACTSPEC_VAR_")
	assert.Equal(t, "http://x", vars["baseUrl"])
}

func TestMergeVariables(t *testing.T) {
	merged := MergeVariables(
		map[string]any{"a": 1, "b": 1},
		map[string]any{"b": 2},
	)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged)
}
