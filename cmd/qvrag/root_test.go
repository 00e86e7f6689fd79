package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points a config file at a sqlite store inside dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`engine:
  collection_name: notes
  chunk_size: 40
  chunk_overlap: 8
embedder:
  type: hashing
  hashing:
    dimensions: 128
vector_store:
  type: sqlite
  sqlite:
    path: %s
logging:
  level: error
`, filepath.Join(dir, "store.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngestQueryInfoDelete(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "fox.txt"), []byte("The quick brown fox jumps over the lazy dog"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "tax.md"), []byte("# Taxes\nQuarterly tax returns are due in April."), 0o644))

	out, err := run(t, "--config", cfg, "ingest", docs, "--meta", "team=docs")
	require.NoError(t, err)
	assert.Contains(t, out, "fox.txt (text): 2 chunks")
	assert.Contains(t, out, "0 failed")

	out, err = run(t, "--config", cfg, "query", "brown", "fox", "-k", "1", "-o", "json")
	require.NoError(t, err)
	var res []jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.Equal(t, filepath.Join(docs, "fox.txt"), res[0].Metadata["source"])
	assert.Equal(t, "docs", res[0].Metadata["team"])

	out, err = run(t, "--config", cfg, "query", "taxes", "--where", "format=markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "1. distance=")
	assert.Contains(t, out, "Quarterly")

	out, err = run(t, "--config", cfg, "query", "taxes", "--where", "format=markdown", "--digest", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "\ndigest: ")

	out, err = run(t, "--config", cfg, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "collection: notes")
	assert.Contains(t, out, "chunks:     4")

	out, err = run(t, "--config", cfg, "delete", "--where", "format=text")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2 chunks\n", out)

	_, err = run(t, "--config", cfg, "delete")
	require.Error(t, err)
}

func TestIngestReportsFailures(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte("fine"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("{oops"), 0o644))

	out, err := run(t, "--config", cfg, "ingest", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "ok   "+good)
	assert.Contains(t, out, "FAIL "+bad)
	assert.Contains(t, out, "1 chunks from 2 sources, 1 failed")
}

func TestIngestRawText(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	out, err := run(t, "--config", cfg, "ingest", "--text", `{"name":"qv"}`, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "text-0 (json): 1 chunks")
}

func TestQueryEmptyCollection(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	out, err := run(t, "--config", cfg, "query", "anything")
	require.NoError(t, err)
	assert.Equal(t, "no results\n", out)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  chunk_size: 10\n  chunk_overlap: 10\n"), 0o644))
	_, err := run(t, "--config", path, "info")
	require.Error(t, err)
}

func TestDefaultConfigPersistsBetweenCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	fox := filepath.Join(dir, "fox.txt")
	require.NoError(t, os.WriteFile(fox, []byte("The quick brown fox jumps over the lazy dog"), 0o644))

	out, err := run(t, "ingest", fox)
	require.NoError(t, err)
	assert.Contains(t, out, "1 chunks from 1 sources, 0 failed")
	assert.FileExists(t, filepath.Join(dir, ".config", "qvrag", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, ".qvrag", "store.db"))

	out, err = run(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks:     1")

	out, err = run(t, "query", "fox")
	require.NoError(t, err)
	assert.Contains(t, out, "1. distance=")
}
