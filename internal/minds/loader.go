package minds

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads and caches .minds/ configuration for one workspace.
type Loader struct {
	workspace string

	mu    sync.Mutex
	team  *Team
	llm   *LLMConfig
	dirty bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a loader for the workspace and starts the .minds watch.
// The watch is best-effort: when it cannot be established, every load hits
// disk.
func NewLoader(workspace string) *Loader {
	l := &Loader{workspace: workspace, dirty: true, done: make(chan struct{})}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("minds: fsnotify unavailable, caching disabled", "error", err)
		return l
	}
	if err := w.Add(l.mindsDir()); err != nil {
		slog.Warn("minds: cannot watch .minds dir", "dir", l.mindsDir(), "error", err)
		w.Close()
		return l
	}
	l.watcher = w
	go l.watch()
	return l
}

// Close stops the fsnotify watch.
func (l *Loader) Close() {
	if l.watcher != nil {
		close(l.done)
		l.watcher.Close()
	}
}

func (l *Loader) mindsDir() string {
	return filepath.Join(l.workspace, ".minds")
}

func (l *Loader) watch() {
	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				l.mu.Lock()
				l.dirty = true
				l.mu.Unlock()
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("minds: watch error", "error", err)
		}
	}
}

// Team returns the parsed team.yaml, reloading when stale.
func (l *Loader) Team() (*Team, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reloadLocked(); err != nil {
		return nil, err
	}
	return l.team, nil
}

// LLM returns the parsed llm.yaml, reloading when stale.
func (l *Loader) LLM() (*LLMConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reloadLocked(); err != nil {
		return nil, err
	}
	return l.llm, nil
}

func (l *Loader) reloadLocked() error {
	if !l.dirty && l.team != nil && l.llm != nil && l.watcher != nil {
		return nil
	}
	team, err := loadTeam(filepath.Join(l.mindsDir(), "team.yaml"))
	if err != nil {
		return err
	}
	llm, err := loadLLM(filepath.Join(l.mindsDir(), "llm.yaml"))
	if err != nil {
		return err
	}
	l.team, l.llm, l.dirty = team, llm, false
	return nil
}

func loadTeam(path string) (*Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team config: %w", err)
	}
	var t Team
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse team.yaml: %w", err)
	}
	for id, m := range t.Members {
		m.ID = id
		t.Members[id] = m
	}
	return &t, nil
}

func loadLLM(path string) (*LLMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read llm config: %w", err)
	}
	var c LLMConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse llm.yaml: %w", err)
	}
	return &c, nil
}

// LoadAgentMinds assembles everything the generation loop needs for one
// agent: team, member, system prompt, memories and the member's tool list.
func (l *Loader) LoadAgentMinds(agentID string) (*AgentMinds, error) {
	team, err := l.Team()
	if err != nil {
		return nil, err
	}
	member, ok := team.Members[agentID]
	if !ok {
		return nil, fmt.Errorf("member %q not found in team", agentID)
	}
	member.ID = agentID

	sysPrompt := ""
	if data, err := os.ReadFile(filepath.Join(l.mindsDir(), agentID+".md")); err == nil {
		sysPrompt = StripFrontmatter(string(data))
	}

	memories, err := l.loadMemories(agentID)
	if err != nil {
		slog.Warn("minds: memories unavailable", "agent", agentID, "error", err)
	}

	return &AgentMinds{
		Team:         team,
		Agent:        member,
		SystemPrompt: sysPrompt,
		Memories:     memories,
		AgentTools:   member.Tools,
	}, nil
}

func (l *Loader) loadMemories(agentID string) ([]string, error) {
	dir := filepath.Join(l.mindsDir(), "memories", agentID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		body := strings.TrimSpace(StripFrontmatter(string(data)))
		if body != "" {
			out = append(out, body)
		}
	}
	return out, nil
}

// FBRSystemPrompt returns the Fresh-Boots-Reasoning system prompt:
// .minds/fbr.<lang>.md, then .minds/fbr.md, then a built-in default.
func (l *Loader) FBRSystemPrompt(lang string) string {
	for _, name := range fallbackNames("fbr", lang) {
		if data, err := os.ReadFile(filepath.Join(l.mindsDir(), name)); err == nil {
			if body := strings.TrimSpace(StripFrontmatter(string(data))); body != "" {
				return body
			}
		}
	}
	return defaultFBRSystemPrompt
}

const defaultFBRSystemPrompt = "You are reasoning with fresh boots: no tools, no prior working state. " +
	"Think through the request below from first principles and answer your caller directly. " +
	"To reply, address @tellasker."

func fallbackNames(base, lang string) []string {
	if lang != "" && lang != "en" {
		return []string{base + "." + lang + ".md", base + ".md"}
	}
	return []string{base + ".md"}
}

// StripFrontmatter removes a leading YAML frontmatter block ("---" fenced)
// from a markdown document.
func StripFrontmatter(doc string) string {
	trimmed := strings.TrimPrefix(doc, "\uFEFF")
	if !strings.HasPrefix(trimmed, "---") {
		return doc
	}
	rest := trimmed[3:]
	if !strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "\r\n") {
		return doc
	}
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return doc
	}
	after := rest[idx+4:]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		return after[nl+1:]
	}
	return ""
}
