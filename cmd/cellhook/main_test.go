package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mattjoyce/cellhook/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	var stdoutBytes, stderrBytes []byte
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); stdoutBytes, _ = io.ReadAll(stdoutR) }()
	go func() { defer wg.Done(); stderrBytes, _ = io.ReadAll(stderrR) }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	wg.Wait()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func cli(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

// writeConfig writes a config pointing at baseURL with one map_image job.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
service:
  log_level: error
store:
  path: %s
  base_id: base1
services:
  base_url: %s
  timeout: 2s
jobs:
  place_map:
    kind: map_image
    table: places
    output: mapUrl
webhooks:
  listen: 127.0.0.1:0
  endpoints:
    - path: /hooks/place-map
      job: place_map
      secret: s3cret
`, filepath.Join(dir, "records.db"), baseURL)
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedPlaces creates the places table with a template/prompt record.
func seedPlaces(t *testing.T, cfgPath string, cells ...string) {
	t.Helper()
	if code, _, stderr := cli(t, "table", "create", "--config", cfgPath, "--id", "places"); code != exitOK {
		t.Fatalf("table create code = %d: %s", code, stderr)
	}
	for _, f := range []string{"tpl", "prompt", "mapUrl"} {
		if code, _, stderr := cli(t, "field", "ensure", "--config", cfgPath, "--table", "places", "--name", f); code != exitOK {
			t.Fatalf("field ensure %s code = %d: %s", f, code, stderr)
		}
	}
	if len(cells) == 0 {
		return
	}
	args := append([]string{"record", "set", "--config", cfgPath, "--table", "places", "--record", "rec1"}, cells...)
	if code, _, stderr := cli(t, args...); code != exitOK {
		t.Fatalf("record set code = %d: %s", code, stderr)
	}
}

func TestRunCLIUsage(t *testing.T) {
	code, _, stderr := cli(t)
	if code != exitError {
		t.Fatalf("no args code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "Usage:") {
		t.Fatalf("stderr missing usage: %s", stderr)
	}

	code, stdout, _ := cli(t, "help")
	if code != exitOK || !strings.Contains(stdout, "run <job> --record <id>") {
		t.Fatalf("help code = %d, stdout = %s", code, stdout)
	}

	code, _, stderr = cli(t, "bogus")
	if code != exitError || !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("bogus code = %d, stderr = %s", code, stderr)
	}
}

func TestRunVersionJSON(t *testing.T) {
	code, stdout, stderr := cli(t, "version", "--json")
	if code != exitOK {
		t.Fatalf("version code = %d: %s", code, stderr)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, stdout)
	}
	if info.Version == "" {
		t.Fatal("version is empty")
	}
}

func TestNormalizeBuildTimeUTC(t *testing.T) {
	got, ok := normalizeBuildTimeUTC("2026-03-01T10:00:00+02:00")
	if !ok || got != "2026-03-01T08:00:00Z" {
		t.Fatalf("normalizeBuildTimeUTC() = %q, %v", got, ok)
	}
	if _, ok := normalizeBuildTimeUTC("unknown"); ok {
		t.Fatal("unknown should not normalize")
	}
	if shortenCommit("0123456789abcdef") != "0123456789ab" {
		t.Fatal("commit not shortened to 12 chars")
	}
}

func TestRecordSetAndGet(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	seedPlaces(t, cfgPath, "tpl=poster", "prompt=Lisbon at dusk")

	code, stdout, stderr := cli(t, "record", "get", "--config", cfgPath, "--table", "places", "--record", "rec1")
	if code != exitOK {
		t.Fatalf("record get code = %d: %s", code, stderr)
	}
	var out struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("record get output is not JSON: %v\n%s", err, stdout)
	}
	if out.ID != "rec1" || out.Fields["prompt"] != "Lisbon at dusk" {
		t.Fatalf("unexpected record: %+v", out)
	}

	code, _, stderr = cli(t, "record", "set", "--config", cfgPath, "--table", "places", "--record", "rec1", "nope=1")
	if code != exitError || !strings.Contains(stderr, "unknown field") {
		t.Fatalf("unknown field code = %d, stderr = %s", code, stderr)
	}
}

func TestFieldEnsureIsIdempotent(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	seedPlaces(t, cfgPath)

	code, stdout, stderr := cli(t, "field", "ensure", "--config", cfgPath, "--table", "places", "--name", "tpl")
	if code != exitOK {
		t.Fatalf("field ensure code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Fatalf("stdout = %s", stdout)
	}

	code, _, _ = cli(t, "field", "ensure", "--config", cfgPath, "--table", "places", "--name", "x", "--type", "date")
	if code != exitError {
		t.Fatalf("bad type code = %d, want %d", code, exitError)
	}
}

func TestRunJobExitCodes(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusOK
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL)
	seedPlaces(t, cfgPath, "tpl=poster", "prompt=Lisbon at dusk")

	code, stdout, stderr := cli(t, "run", "place_map", "--config", cfgPath, "--record", "rec1")
	if code != exitOK {
		t.Fatalf("run code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "place_map dispatched for rec1") {
		t.Fatalf("stdout = %s", stdout)
	}
	mu.Lock()
	if len(paths) != 1 || paths[0] != "/new_map_image/run" {
		t.Fatalf("paths = %v", paths)
	}
	status = http.StatusBadGateway
	mu.Unlock()

	code, _, _ = cli(t, "run", "place_map", "--config", cfgPath, "--record", "rec1")
	if code != exitRemote {
		t.Fatalf("remote failure code = %d, want %d", code, exitRemote)
	}

	if code, _, stderr := cli(t, "record", "set", "--config", cfgPath, "--table", "places", "--record", "rec1", "prompt="); code != exitOK {
		t.Fatalf("clear prompt code = %d: %s", code, stderr)
	}
	code, _, _ = cli(t, "run", "place_map", "--config", cfgPath, "--record", "rec1")
	if code != exitValidation {
		t.Fatalf("missing input code = %d, want %d", code, exitValidation)
	}

	code, _, stderr = cli(t, "run", "nope", "--config", cfgPath, "--record", "rec1")
	if code != exitError || !strings.Contains(stderr, "Unknown job") {
		t.Fatalf("unknown job code = %d, stderr = %s", code, stderr)
	}
}

func TestConfigCheckAndLock(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	code, stdout, stderr := cli(t, "config", "check", "--config", cfgPath, "--json")
	if code != exitOK {
		t.Fatalf("config check code = %d: %s", code, stderr)
	}
	var res checkResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("check output is not JSON: %v", err)
	}
	if !res.Valid || res.Locked || len(res.Jobs) != 1 {
		t.Fatalf("unexpected check result: %+v", res)
	}

	if code, _, stderr := cli(t, "config", "lock", "--config", cfgPath); code != exitOK {
		t.Fatalf("config lock code = %d: %s", code, stderr)
	}
	code, _, _ = cli(t, "config", "check", "--config", cfgPath)
	if code != exitOK {
		t.Fatalf("check after lock code = %d", code)
	}

	f, err := os.OpenFile(cfgPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("\n# edited\n")
	_ = f.Close()

	code, _, stderr = cli(t, "config", "check", "--config", cfgPath)
	if code != exitError || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("tampered check code = %d, stderr = %s", code, stderr)
	}
}

func TestHookSign(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	code, stdout, stderr := cli(t, "hook", "sign", "--config", cfgPath, "--path", "/hooks/place-map", "--record", "rec1")
	if code != exitOK {
		t.Fatalf("hook sign code = %d: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.HasPrefix(lines[0], "X-Signature-256: sha256=") {
		t.Fatalf("header line = %q", lines[0])
	}
	if lines[1] != `{"record_id":"rec1"}` {
		t.Fatalf("body line = %q", lines[1])
	}

	code, _, _ = cli(t, "hook", "sign", "--config", cfgPath, "--path", "/nope", "--record", "rec1")
	if code != exitError {
		t.Fatalf("unknown path code = %d", code)
	}
}
