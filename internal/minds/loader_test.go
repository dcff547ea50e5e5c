package minds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMinds(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	ws := t.TempDir()
	dir := filepath.Join(ws, ".minds")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	l := NewLoader(ws)
	t.Cleanup(l.Close)
	return l
}

func TestStripFrontmatter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no frontmatter", "plain body\n", "plain body\n"},
		{"bom before fence", "\uFEFF---\ntitle: x\n---\nbody here\n", "body here\n"},
		{"stripped", "---\ntitle: x\n---\nbody here\n", "body here\n"},
		{"fence without newline", "---title\nbody", "---title\nbody"},
		{"unterminated fence", "---\ntitle: x\nbody", "---\ntitle: x\nbody"},
		{"only frontmatter", "---\ntitle: x\n---", ""},
		{"dashes mid-document", "intro\n---\nrest", "intro\n---\nrest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFrontmatter(tt.in); got != tt.want {
				t.Errorf("StripFrontmatter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMsgFallback(t *testing.T) {
	en := Msg("en", MsgUnknownTeammate, "@dave")
	if !strings.Contains(en, "@dave") {
		t.Errorf("en message = %q", en)
	}
	zh := Msg("zh", MsgUnknownTeammate, "@dave")
	if zh == en || !strings.Contains(zh, "@dave") {
		t.Errorf("zh message = %q", zh)
	}
	// Unknown language falls back to English.
	if got := Msg("fr", MsgUnknownTeammate, "@dave"); got != en {
		t.Errorf("fr fallback = %q, want %q", got, en)
	}
	if got := Msg("", MsgBudgetExhausted); got != Msg("en", MsgBudgetExhausted) {
		t.Errorf("empty lang = %q", got)
	}
}

func TestMemberDefaults(t *testing.T) {
	var m Member
	if m.EffectiveFBREffort() != 1 {
		t.Errorf("default fbr effort = %d, want 1", m.EffectiveFBREffort())
	}
	if m.EffectiveDiligencePushMax() != DefaultDiligencePushMax {
		t.Errorf("default push max = %d", m.EffectiveDiligencePushMax())
	}
	if !m.WantsStreaming() {
		t.Error("streaming should default on")
	}

	zero, five, off := 0, 5, false
	m = Member{FBREffort: &zero, DiligencePushMax: &five, Streaming: &off}
	if m.EffectiveFBREffort() != 0 {
		t.Errorf("fbr effort = %d, want 0 (explicit disable)", m.EffectiveFBREffort())
	}
	if m.EffectiveDiligencePushMax() != 5 {
		t.Errorf("push max = %d, want 5", m.EffectiveDiligencePushMax())
	}
	if m.WantsStreaming() {
		t.Error("streaming should honor explicit false")
	}
}

func TestModelSpecHardLimit(t *testing.T) {
	if got := (ModelSpec{ContextLength: 100, InputLength: 50}).HardLimitTokens(); got != 100 {
		t.Errorf("hard limit = %d, want context_length", got)
	}
	if got := (ModelSpec{InputLength: 50}).HardLimitTokens(); got != 50 {
		t.Errorf("hard limit = %d, want input_length fallback", got)
	}
}

func TestLoadAgentMinds(t *testing.T) {
	l := writeMinds(t, map[string]string{
		"team.yaml": `members:
  alice:
    provider: p
    model: m
    tools: [remind]
`,
		"llm.yaml":                    "providers: {}\n",
		"alice.md":                    "---\nrole: lead\n---\nYou are Alice.\n",
		"memories/alice/01-first.md":  "remember the deadline\n",
		"memories/alice/02-second.md": "---\nk: v\n---\nprefer short answers\n",
		"memories/alice/ignored.txt":  "not markdown\n",
	})

	am, err := l.LoadAgentMinds("alice")
	if err != nil {
		t.Fatal(err)
	}
	if am.Agent.ID != "alice" || am.Agent.Provider != "p" {
		t.Errorf("agent = %+v", am.Agent)
	}
	if am.SystemPrompt != "You are Alice.\n" {
		t.Errorf("system prompt = %q", am.SystemPrompt)
	}
	if len(am.Memories) != 2 || am.Memories[0] != "remember the deadline" || am.Memories[1] != "prefer short answers" {
		t.Errorf("memories = %q", am.Memories)
	}
	if len(am.AgentTools) != 1 || am.AgentTools[0] != "remind" {
		t.Errorf("tools = %v", am.AgentTools)
	}

	if _, err := l.LoadAgentMinds("dave"); err == nil {
		t.Error("unknown member did not error")
	}
}

func TestLoadDiligence(t *testing.T) {
	// Absent file: built-in default.
	l := writeMinds(t, map[string]string{
		"team.yaml": "members: {}\n",
		"llm.yaml":  "providers: {}\n",
	})
	if dil := l.LoadDiligence(""); dil.Disabled || dil.Text == "" {
		t.Errorf("default diligence = %+v", dil)
	}

	// An explicitly empty file disables the push.
	l = writeMinds(t, map[string]string{
		"team.yaml":    "members: {}\n",
		"llm.yaml":     "providers: {}\n",
		"diligence.md": "",
	})
	if dil := l.LoadDiligence(""); !dil.Disabled {
		t.Errorf("empty file = %+v, want disabled", dil)
	}

	// Language-specific file wins over the base file.
	l = writeMinds(t, map[string]string{
		"team.yaml":       "members: {}\n",
		"llm.yaml":        "providers: {}\n",
		"diligence.md":    "keep going\n",
		"diligence.zh.md": "继续推进\n",
	})
	if dil := l.LoadDiligence("zh"); dil.Text != "继续推进" {
		t.Errorf("zh diligence = %+v", dil)
	}
	if dil := l.LoadDiligence("en"); dil.Text != "keep going" {
		t.Errorf("en diligence = %+v", dil)
	}
}

func TestFBRSystemPrompt(t *testing.T) {
	l := writeMinds(t, map[string]string{
		"team.yaml": "members: {}\n",
		"llm.yaml":  "providers: {}\n",
	})
	if got := l.FBRSystemPrompt(""); !strings.Contains(got, "fresh boots") {
		t.Errorf("default prompt = %q", got)
	}

	l = writeMinds(t, map[string]string{
		"team.yaml": "members: {}\n",
		"llm.yaml":  "providers: {}\n",
		"fbr.md":    "---\nx: y\n---\nthink it over\n",
	})
	if got := l.FBRSystemPrompt("en"); got != "think it over" {
		t.Errorf("fbr.md prompt = %q", got)
	}
}

func TestLLMProviderSpec(t *testing.T) {
	l := writeMinds(t, map[string]string{
		"team.yaml": "members: {}\n",
		"llm.yaml": `providers:
  openrouter:
    apiType: openai
    base_url: https://gateway.example/api/v1
    api_key_env: OPENROUTER_KEY
    requests_per_minute: 90
    models:
      big:
        context_length: 200000
`,
	})
	llm, err := l.LLM()
	if err != nil {
		t.Fatal(err)
	}
	p, ok := llm.Providers["openrouter"]
	if !ok {
		t.Fatalf("providers = %+v", llm.Providers)
	}
	if p.APIType != "openai" || p.BaseURL != "https://gateway.example/api/v1" || p.APIKeyEnv != "OPENROUTER_KEY" {
		t.Errorf("provider = %+v", p)
	}
	if p.RequestsPerMinute != 90 {
		t.Errorf("requests_per_minute = %d, want 90", p.RequestsPerMinute)
	}
	if p.Models["big"].ContextLength != 200000 {
		t.Errorf("models = %+v", p.Models)
	}
}

func TestTeamMemberIDsFilledFromKeys(t *testing.T) {
	l := writeMinds(t, map[string]string{
		"team.yaml": `member_defaults:
  provider: shared
  model: base
members:
  alice: {}
  bob:
    provider: own
`,
		"llm.yaml": "providers: {}\n",
	})
	team, err := l.Team()
	if err != nil {
		t.Fatal(err)
	}
	if team.Members["alice"].ID != "alice" || team.Members["bob"].ID != "bob" {
		t.Errorf("member IDs not filled: %+v", team.Members)
	}
	if team.MemberDefaults.Provider != "shared" {
		t.Errorf("member_defaults = %+v", team.MemberDefaults)
	}
}
