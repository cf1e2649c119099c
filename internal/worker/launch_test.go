package worker

import (
	"strings"
	"testing"

	"github.com/agusx1211/amux/internal/store"
)

func testProjectSettings() *store.ProjectSettings {
	return &store.ProjectSettings{
		Env: map[string]string{},
		Models: store.ModelSettings{
			Main: "gpt-4o",
		},
		Worker: store.WorkerSettings{
			Interpreter: "python3",
			Module:      "amux_connector",
		},
	}
}

func TestBuildLaunchSpecBasics(t *testing.T) {
	spec := BuildLaunchSpec(testProjectSettings(), "ws://127.0.0.1:24337/ws")

	if spec.Command != "python3" {
		t.Fatalf("Command = %q, want python3", spec.Command)
	}
	wantPrefix := []string{"-m", "amux_connector", "--no-check-update", "--no-show-model-warnings", "--model", "gpt-4o"}
	if len(spec.Args) != len(wantPrefix) {
		t.Fatalf("Args = %v, want %v", spec.Args, wantPrefix)
	}
	for i := range wantPrefix {
		if spec.Args[i] != wantPrefix[i] {
			t.Fatalf("Args[%d] = %q, want %q", i, spec.Args[i], wantPrefix[i])
		}
	}
	if !envContains(spec.Env, "AMUX_SERVER_URL=ws://127.0.0.1:24337/ws") {
		t.Fatal("env missing AMUX_SERVER_URL")
	}
}

func TestBuildLaunchSpecStripsUserModelFlag(t *testing.T) {
	ps := testProjectSettings()
	ps.Worker.Options = "--model claude-3 --verbose --model=gpt-3.5"
	spec := BuildLaunchSpec(ps, "ws://x/ws")

	joined := strings.Join(spec.Args, " ")
	if strings.Contains(joined, "claude-3") || strings.Contains(joined, "gpt-3.5") {
		t.Fatalf("user model flags survived: %v", spec.Args)
	}
	if !strings.Contains(joined, "--verbose") {
		t.Fatalf("unrelated user option dropped: %v", spec.Args)
	}
	// The orchestrator's model selection still wins.
	if !strings.Contains(joined, "--model gpt-4o") {
		t.Fatalf("configured model missing: %v", spec.Args)
	}
}

func TestBuildLaunchSpecModelFlags(t *testing.T) {
	ps := testProjectSettings()
	ps.Models.Weak = "gpt-4o-mini"
	ps.Models.ReasoningEffort = "high"
	ps.Models.ThinkingTokens = "8096"
	spec := BuildLaunchSpec(ps, "ws://x/ws")

	joined := strings.Join(spec.Args, " ")
	for _, want := range []string{"--weak-model gpt-4o-mini", "--reasoning-effort high", "--thinking-tokens 8096"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, spec.Args)
		}
	}
}

func TestBuildLaunchSpecSuppressesDuplicateReasoningFlags(t *testing.T) {
	ps := testProjectSettings()
	ps.Worker.Options = "--reasoning-effort low --thinking-tokens=1024"
	ps.Models.ReasoningEffort = "high"
	ps.Models.ThinkingTokens = "8096"
	spec := BuildLaunchSpec(ps, "ws://x/ws")

	joined := strings.Join(spec.Args, " ")
	if strings.Contains(joined, "high") {
		t.Fatalf("configured reasoning effort should be suppressed: %v", spec.Args)
	}
	if strings.Contains(joined, "8096") {
		t.Fatalf("configured thinking tokens should be suppressed: %v", spec.Args)
	}
}

func TestBuildLaunchSpecEnvOverlay(t *testing.T) {
	ps := testProjectSettings()
	ps.Env["OPENAI_API_KEY"] = "sk-test"
	ps.Worker.ModulePath = "/opt/amux/connector"
	spec := BuildLaunchSpec(ps, "ws://x/ws")

	if !envContains(spec.Env, "OPENAI_API_KEY=sk-test") {
		t.Fatal("project env override missing")
	}
	if !envContains(spec.Env, "PYTHONPATH=/opt/amux/connector") {
		t.Fatal("module path env missing")
	}
}

func envContains(env []string, entry string) bool {
	for _, e := range env {
		if e == entry {
			return true
		}
	}
	return false
}

func TestSplitOptions(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"--verbose", []string{"--verbose"}},
		{"--a  --b\t--c", []string{"--a", "--b", "--c"}},
		{`--msg "hello world" --x`, []string{"--msg", "hello world", "--x"}},
		{`--msg 'a b'`, []string{"--msg", "a b"}},
		{`--empty ""`, []string{"--empty", ""}},
	}
	for _, c := range cases {
		got := SplitOptions(c.in)
		if len(got) != len(c.want) {
			t.Errorf("SplitOptions(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range c.want {
			if got[i] != c.want[i] {
				t.Errorf("SplitOptions(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}
