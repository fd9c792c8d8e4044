package scripts

import (
	"os"
	"path/filepath"
	"testing"
)

func writeHelper(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestFetchLogs(t *testing.T) {
	dir := t.TempDir()
	writeHelper(t, dir, fetchLogsHelper, `echo "log for $1 $2 series $3"`)

	r := NewRunner(dir)
	logs := r.FetchLogs("github", "owner/repo", 1000, "abc", "tok", "Build")
	if logs != "log for github owner/repo series 1000\n" {
		t.Errorf("logs = %q", logs)
	}
}

func TestFetchLogs_MissingHelper(t *testing.T) {
	r := NewRunner(t.TempDir())
	if logs := r.FetchLogs("github", "owner/repo", 1000, "abc", "tok", "Build"); logs != "" {
		t.Errorf("logs = %q, want empty on missing helper", logs)
	}
}

func TestFetchLogs_HelperFailure(t *testing.T) {
	dir := t.TempDir()
	writeHelper(t, dir, fetchLogsHelper, `exit 3`)

	r := NewRunner(dir)
	if logs := r.FetchLogs("github", "owner/repo", 1000, "abc", "tok", "Build"); logs != "" {
		t.Errorf("logs = %q, want empty on helper failure", logs)
	}
}

func TestFetchLogs_TokenInEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeHelper(t, dir, fetchLogsHelper, `printf '%s' "$CI_TOKEN"`)

	r := NewRunner(dir)
	if logs := r.FetchLogs("github", "owner/repo", 1000, "abc", "sekrit", "Build"); logs != "sekrit" {
		t.Errorf("helper saw token %q", logs)
	}
}

func TestPostResult(t *testing.T) {
	dir := t.TempDir()
	writeHelper(t, dir, postResultHelper,
		`echo "{\"url\": \"https://results.example.com/$4\"}"`)

	r := NewRunner(dir)
	data := r.PostResult("github", "owner/repo", 1000, 100001, "abc", "passed",
		"https://ci/build/1", "tok", "")
	if data == nil {
		t.Fatal("PostResult returned nil")
	}
	if data.URL != "https://results.example.com/100001" {
		t.Errorf("URL = %q", data.URL)
	}
}

func TestPostResult_MalformedOutput(t *testing.T) {
	dir := t.TempDir()
	writeHelper(t, dir, postResultHelper, `echo "not json"`)

	r := NewRunner(dir)
	data := r.PostResult("github", "owner/repo", 1000, 100001, "abc", "passed",
		"https://ci/build/1", "tok", "")
	if data != nil {
		t.Errorf("data = %+v, want nil on malformed output", data)
	}
}
