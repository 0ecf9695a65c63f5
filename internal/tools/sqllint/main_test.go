package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestJobQueriesCarryUniqueMarkers(t *testing.T) {
	violations, err := lintPaths([]string{"../../sqlinline"})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "q.go", "package q\n\n"+
		"const QOk = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;`\n"+
		"const QBare = `select id from generation_jobs;`\n"+
		"const QDup = `--sql 11111111-2222-4333-8444-555555555555\ndelete from generation_jobs;`\n"+
		"const Label = \"not a statement\"\n")
	writeSource(t, dir, "q_test.go", "package q\n\nconst QTest = `select 2;`\n")

	violations, err := lintPaths([]string{dir})
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, "QBare", violations[0].name)
	assert.Contains(t, violations[0].message, "missing")
	assert.Equal(t, "QDup", violations[1].name)
	assert.Contains(t, violations[1].message, "QOk")
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "q.go", "package q\n\nconst QBad = `--sql nope\nupdate t set a = 1;`\n")

	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{dir}, &stderr))
	assert.Contains(t, stderr.String(), "QBad")

	stderr.Reset()
	assert.Equal(t, 0, run([]string{"../../sqlinline"}, &stderr))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 2, run([]string{filepath.Join(dir, "missing")}, &stderr))
}
