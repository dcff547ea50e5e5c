package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
	filestore "github.com/dominds/minddrive/internal/store/file"
	"github.com/dominds/minddrive/internal/tools"
)

const testLLMYAML = `providers:
  fake:
    apiType: openai
    models:
      m:
        context_length: 200000
`

const testTeamYAML = `members:
  alice:
    provider: fake
    model: m
    streaming: false
  bob:
    provider: fake
    model: m
    streaming: false
`

// fakeGen scripts generation turns for drive tests.
type fakeGen struct {
	fn func(req providers.GenRequest) (*providers.GenResult, error)
}

func (g *fakeGen) Name() string    { return "fake" }
func (g *fakeGen) APIType() string { return providers.APITypeOpenAI }

func (g *fakeGen) GenMessages(ctx context.Context, req providers.GenRequest) (*providers.GenResult, error) {
	return g.fn(req)
}

func (g *fakeGen) GenToReceiver(ctx context.Context, req providers.GenRequest, rcv providers.Receiver, genseq int) (*providers.GenResult, error) {
	return g.fn(req)
}

// testWorkspace lays out a workspace with .minds/ configuration. extra maps
// file names under .minds/ to their content; a "diligence.md" entry with
// empty content disables the diligence push so idle drives terminate.
func testWorkspace(t *testing.T, teamYAML string, extra map[string]string) string {
	t.Helper()
	ws := t.TempDir()
	mindsDir := filepath.Join(ws, ".minds")
	if err := os.MkdirAll(mindsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"team.yaml":    teamYAML,
		"llm.yaml":     testLLMYAML,
		"diligence.md": "",
	}
	for name, content := range extra {
		files[name] = content
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(mindsDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return ws
}

// newTestRuntime builds a Runtime over a file store in the workspace with
// the fake provider pre-registered.
func newTestRuntime(t *testing.T, ws string, gen providers.Generator, toolReg *tools.Registry, opts ...Option) (*Runtime, *bus.MessageBus) {
	t.Helper()
	st, err := filestore.New(filepath.Join(ws, ".minddrive"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	loader := minds.NewLoader(ws)
	t.Cleanup(loader.Close)

	if toolReg == nil {
		toolReg = tools.NewRegistry()
	}
	pub := bus.NewMessageBus()
	cfg := &config.Config{
		Workspace: ws,
		Driver: config.DriverConfig{
			PollInterval: 10 * time.Millisecond,
			ErrorBackoff: 10 * time.Millisecond,
		},
	}
	all := append([]Option{WithGenerator("fake", gen)}, opts...)
	return New(cfg, st, loader, toolReg, pub, all...), pub
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
