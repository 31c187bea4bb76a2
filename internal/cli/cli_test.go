package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/casebank/internal/config"
	"github.com/khanglvm/casebank/internal/mcp"
	"github.com/khanglvm/casebank/internal/model"
)

// testEnv isolates a command run: its own config path, data dir and no .env.
type testEnv struct {
	dir        string
	configPath string
	dataDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{config.EnvDataDir, config.EnvEmbedder, config.EnvOllamaURL, config.EnvOllamaModel, config.EnvLimit} {
		t.Setenv(key, "")
	}
	return &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "casebank.json"),
		dataDir:    filepath.Join(dir, "data"),
	}
}

// run executes the root command with args and returns stdout.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	full := append([]string{
		"--config", e.configPath,
		"--data-dir", e.dataDir,
		"--env-file", filepath.Join(e.dir, "missing.env"),
	}, args...)
	cmd.SetArgs(full)

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("%v failed: %v\noutput: %s", args, err, out)
	}
	return out
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const samplesJSON = `[
  {"userStory": "As a user, I want to log in with my email and password",
   "testCases": [{"id": "TC-1", "title": "Valid credentials log the user in"}]},
  {"userStory": "As a shopper, I want to add products to my shopping cart",
   "testCases": [{"id": "TC-1", "title": "Cart count increases"}]},
  {"userStory": "As an admin, I want to export monthly sales reports",
   "testCases": [{"id": "TC-1", "title": "CSV contains every order"}]}
]`

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	expected := []string{"serve", "retrieve", "record", "feedback", "seed", "reindex", "benchmark", "learning", "config", "version"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "env-file", "data-dir"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag %q not registered", flag)
		}
	}
}

func TestServeCommandHelp(t *testing.T) {
	env := newTestEnv(t)
	output := env.mustRun(t, "serve", "--help")

	for _, expected := range []string{"serve", "MCP server", "stdio", "casebank_retrieve", "--no-watch"} {
		if !strings.Contains(output, expected) {
			t.Errorf("Help output missing %q", expected)
		}
	}
}

func TestSeedRetrieveFeedbackFlow(t *testing.T) {
	env := newTestEnv(t)
	samples := env.writeFile(t, "samples.json", samplesJSON)

	out := env.mustRun(t, "seed", samples)
	if !strings.Contains(out, "3 added") {
		t.Errorf("unexpected seed output: %s", out)
	}

	// Re-seeding is idempotent
	out = env.mustRun(t, "seed", samples)
	if !strings.Contains(out, "0 added, 3 skipped") {
		t.Errorf("expected all samples skipped, got: %s", out)
	}

	out = env.mustRun(t, "retrieve", "--json", "-n", "1", "As a user, I want to log in with my email and password")
	var resp mcp.RetrieveResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(resp.Examples) != 1 {
		t.Fatalf("expected 1 example, got %d", len(resp.Examples))
	}
	loginID := resp.Examples[0].RequestID
	if resp.Examples[0].Source != model.SourceSample {
		t.Errorf("expected sample source, got %q", resp.Examples[0].Source)
	}

	out = env.mustRun(t, "feedback", loginID, "5", "--comments", "great")
	if !strings.Contains(out, "quality 4.00 after 1 ratings") {
		t.Errorf("unexpected feedback output: %s", out)
	}

	out = env.mustRun(t, "learning", "status", "--json")
	var stats model.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid stats JSON: %v", err)
	}
	if stats.TotalRecorded != 3 || stats.TotalFeedbackReceived != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRetrieveWithRecord(t *testing.T) {
	env := newTestEnv(t)
	cases := env.writeFile(t, "cases.json", `[{"id": "TC-1", "title": "Refund is approved"}]`)
	story := "As an admin, I want to approve refund requests"

	out := env.mustRun(t, "retrieve", story, "--record", cases)
	if !strings.Contains(out, "No examples yet") {
		t.Errorf("expected empty store message, got: %s", out)
	}
	if !strings.Contains(out, "Recorded 1 test cases") {
		t.Errorf("expected record confirmation, got: %s", out)
	}

	out = env.mustRun(t, "retrieve", story)
	if !strings.Contains(out, "Refund is approved") {
		t.Errorf("recorded example not retrieved: %s", out)
	}
}

func TestRecordFromStdin(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, `[{"title": "Deactivated user cannot log in"}]`,
		"record", "As an admin, I want to deactivate accounts", "--cases", "-")
	if err != nil {
		t.Fatalf("record failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Recorded 1 test cases") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFeedbackErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"not a number", []string{"feedback", "id", "great"}, "invalid rating"},
		{"out of range", []string{"feedback", "id", "6"}, "invalid rating"},
		{"unknown request", []string{"feedback", "missing-id", "3"}, "Record test cases"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestSeedDirectory(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.dir, "seeds")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "a.json"), []byte(samplesJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "seed", dir)
	if !strings.Contains(out, "3 added, 0 skipped, 0 failed") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLearningExportAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "seed", env.writeFile(t, "samples.json", samplesJSON))

	exportPath := filepath.Join(env.dir, "export.json")
	env.mustRun(t, "learning", "export", "-o", exportPath)

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	var examples []model.StoredExample
	if err := json.Unmarshal(data, &examples); err != nil {
		t.Fatalf("invalid export: %v", err)
	}
	if len(examples) != 3 {
		t.Errorf("expected 3 exported examples, got %d", len(examples))
	}

	out, err := env.run(t, "n\n", "learning", "clear")
	if err != nil || !strings.Contains(out, "Cancelled") {
		t.Errorf("expected cancellation, got %q (%v)", out, err)
	}

	out = env.mustRun(t, "learning", "clear", "--yes")
	if !strings.Contains(out, "3 examples removed") {
		t.Errorf("unexpected clear output: %s", out)
	}

	out = env.mustRun(t, "learning", "status")
	if !strings.Contains(out, "Examples recorded: 0") {
		t.Errorf("store not cleared: %s", out)
	}
}

func TestLearningAnalyze_NoFeedback(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "learning", "analyze")
	if !strings.Contains(out, "No feedback data available") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "seed", env.writeFile(t, "samples.json", samplesJSON))

	out := env.mustRun(t, "reindex")
	if !strings.Contains(out, "Reindexed 3 examples") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestBenchmark(t *testing.T) {
	env := newTestEnv(t)
	samples := env.writeFile(t, "samples.json", samplesJSON)

	out := env.mustRun(t, "benchmark", samples, "--json", "-k", "2")

	var result struct {
		Examples int `json:"examples"`
		K        int `json:"k"`
		Semantic struct {
			Queries int     `json:"queries"`
			HitAt1  float64 `json:"hitAt1"`
		} `json:"semantic"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if result.Examples != 3 || result.K != 2 || result.Semantic.Queries != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Semantic.HitAt1 != 1.0 {
		t.Errorf("expected perfect self-retrieval, got %v", result.Semantic.HitAt1)
	}

	// The real store is untouched
	out = env.mustRun(t, "learning", "status", "--json")
	if !strings.Contains(out, `"totalRecorded": 0`) {
		t.Errorf("benchmark leaked into the learning store: %s", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := newTestEnv(t)
	env.configPath = filepath.Join(env.dir, "casebank.yaml")

	out := env.mustRun(t, "config", "init")
	if !strings.Contains(out, "Wrote default config") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := config.LoadFrom(env.configPath); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}

	if _, err := env.run(t, "", "config", "init"); err == nil {
		t.Error("expected error when config exists")
	}
	env.mustRun(t, "config", "init", "--force")
	if _, err := os.Stat(env.configPath + ".bak"); err != nil {
		t.Errorf("expected backup after --force: %v", err)
	}

	t.Setenv(config.EnvLimit, "7")
	out = env.mustRun(t, "config", "show")
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.Settings.Retrieval.Limit != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Settings.Retrieval.Limit)
	}
	if cfg.Settings.DataDir != env.dataDir {
		t.Errorf("expected --data-dir to win, got %q", cfg.Settings.DataDir)
	}
}

func TestInvalidEnvOverride(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(config.EnvEmbedder, "word2vec")

	_, err := env.run(t, "", "learning", "status")
	if err == nil || !strings.Contains(err.Error(), "embedder.type") {
		t.Errorf("expected embedder error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "version", "--json")
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info["version"] == "" || info["platform"] == "" {
		t.Errorf("missing fields: %v", info)
	}
}
