package command_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codegrader/internal/cli/command"
	"codegrader/internal/testutil"
)

func mustCommand(t *testing.T, key string) command.Command {
	t.Helper()
	cmd, ok := command.Registry()[key]
	if !ok {
		t.Fatalf("command %q not registered", key)
	}
	return cmd
}

func TestRegistry_Keys(t *testing.T) {
	keys := command.SortedKeys(command.Registry())
	want := []string{
		"exec languages", "exec result", "exec results", "exec run",
		"submit batch", "submit create", "submit finalize", "submit get", "submit list", "submit refresh",
	}
	testutil.AssertEqual(t, strings.Join(keys, "|"), strings.Join(want, "|"))
}

func TestBuildRequest_SubmitCreateFromFiles(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(sourcePath, []byte("print(input())\n"), 0o600); err != nil {
		t.Fatalf("write source failed: %v", err)
	}

	params := command.Params{}
	params.Set("problem", "two-sum")
	params.Set("source_file", sourcePath)
	params.Set("lang", "python")
	params.Set("stdin", `["1","2"]`)
	params.Set("expected", `["1","2"]`)
	params.Set("idempotency_key", "req-7")

	spec, err := command.BuildRequest(mustCommand(t, "submit create"), params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	testutil.AssertEqual(t, spec.Method, "POST")
	testutil.AssertEqual(t, spec.Path, "/api/v1/submissions")
	testutil.AssertEqual(t, spec.Headers["Idempotency-Key"], "req-7")

	var body map[string]interface{}
	testutil.MustUnmarshalJSON(t, spec.Body, &body)
	testutil.AssertEqual(t, body["problem_id"], "two-sum")
	testutil.AssertEqual(t, body["source_code"], "print(input())\n")
	testutil.AssertEqual(t, body["language_id"], "python")
	if stdin, ok := body["stdin"].([]interface{}); !ok || len(stdin) != 2 {
		t.Fatalf("stdin should be an array, got %#v", body["stdin"])
	}
	if _, ok := body["idempotency_key"]; ok {
		t.Fatalf("idempotency key belongs in the header")
	}
	if _, ok := body["top_code"]; ok {
		t.Fatalf("empty optional fields should be omitted")
	}
}

func TestBuildRequest_RawStdin(t *testing.T) {
	params := command.Params{"code": "x", "language": "71", "stdin": "1 2"}
	spec, err := command.BuildRequest(mustCommand(t, "exec run"), params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	var body struct {
		Stdin []string `json:"stdin"`
	}
	testutil.MustUnmarshalJSON(t, spec.Body, &body)
	if len(body.Stdin) != 1 || body.Stdin[0] != "1 2" {
		t.Fatalf("unexpected stdin: %#v", body.Stdin)
	}
}

func TestBuildRequest_PathAndQuery(t *testing.T) {
	spec, err := command.BuildRequest(mustCommand(t, "exec result"), command.Params{"token": "a/b"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	testutil.AssertEqual(t, spec.Path, "/api/v1/executions/a%2Fb")
	if spec.Body != nil {
		t.Fatalf("GET must not carry a body")
	}

	spec, err = command.BuildRequest(mustCommand(t, "submit list"), command.Params{"problem": "p 1", "limit": "5"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	testutil.AssertEqual(t, spec.Path, "/api/v1/submissions?limit=5&problem_id=p+1")

	_, err = command.BuildRequest(mustCommand(t, "submit list"), command.Params{"limit": "many"})
	if err == nil {
		t.Fatalf("expected error for non-numeric limit")
	}
}

func TestBuildRequest_Finalize(t *testing.T) {
	params := command.Params{
		"id":               "s1",
		"results":          `[{"status":{"id":3}}]`,
		"expected_outputs": `["42"]`,
	}
	spec, err := command.BuildRequest(mustCommand(t, "submit finalize"), params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	testutil.AssertEqual(t, spec.Path, "/api/v1/submissions/s1/finalize")
	var body struct {
		ID       string            `json:"id"`
		Results  []json.RawMessage `json:"results"`
		Expected []string          `json:"expected_outputs"`
	}
	testutil.MustUnmarshalJSON(t, spec.Body, &body)
	if body.ID != "" || len(body.Results) != 1 || body.Expected[0] != "42" {
		t.Fatalf("unexpected body: %s", spec.Body)
	}

	params = command.Params{"id": "s1", "results": "{not json", "expected_outputs": "x"}
	if _, err := command.BuildRequest(mustCommand(t, "submit finalize"), params); err == nil {
		t.Fatalf("expected invalid json error")
	}
}

func TestBuildRequest_Errors(t *testing.T) {
	if _, err := command.BuildRequest(mustCommand(t, "exec run"), command.Params{"code": "x"}); err == nil {
		t.Fatalf("expected missing language error")
	}
	params := command.Params{"lang": "python", "source_file": filepath.Join(t.TempDir(), "missing.py")}
	if _, err := command.BuildRequest(mustCommand(t, "exec run"), params); err == nil {
		t.Fatalf("expected unreadable file error")
	}
}

func TestParseHelpers(t *testing.T) {
	testutil.AssertEqual(t, strings.Join(command.ParseStringList(" a, ,b "), "|"), "a|b")
	testutil.AssertEqual(t, strings.Join(command.ParseInputs(`["x","y"]`), "|"), "x|y")
	testutil.AssertEqual(t, strings.Join(command.ParseInputs(`[broken`), "|"), "[broken")
	if _, err := command.ParseInt("12x"); err == nil {
		t.Fatalf("expected int parse error")
	}
}
