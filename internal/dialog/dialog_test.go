package dialog

import (
	"testing"
)

func TestIDKeys(t *testing.T) {
	root := RootID("alice")
	if !root.IsRoot() {
		t.Error("root id is not a root")
	}
	if got := root.Key(); got != "alice/alice" {
		t.Errorf("root key = %q", got)
	}
	sub := SubID("alice", "bob.plan.v1")
	if sub.IsRoot() {
		t.Error("sub id claims to be a root")
	}
	if got := sub.Key(); got != "alice/bob.plan.v1" {
		t.Errorf("sub key = %q", got)
	}
	if got := sub.RootDialogID(); got != root {
		t.Errorf("root of sub = %v, want %v", got, root)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key  string
		want ID
		ok   bool
	}{
		{"alice/alice", RootID("alice"), true},
		{"alice/bob.plan.v1", SubID("alice", "bob.plan.v1"), true},
		{"alice", ID{}, false},
		{"/x", ID{}, false},
		{"x/", ID{}, false},
		{"", ID{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseKey(tt.key)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseKey(%q) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNextGenSeqMonotone(t *testing.T) {
	d := NewRoot("alice", "alice")
	prev := 0
	for i := 0; i < 5; i++ {
		got := d.NextGenSeq()
		if got <= prev {
			t.Fatalf("genseq %d not strictly increasing after %d", got, prev)
		}
		prev = got
	}
	if d.ActiveGenSeq() != prev {
		t.Errorf("ActiveGenSeq = %d, want %d", d.ActiveGenSeq(), prev)
	}
}

func TestStartNewCourse(t *testing.T) {
	d := NewRoot("alice", "alice")
	d.NextGenSeq()
	d.AddChatMessages(
		NewPrompting("m1", "hello", GrammarMarkdown, 1),
		ChatMessage{Type: MsgSaying, Content: "hi", GenSeq: 1},
	)

	archived, course := d.StartNewCourse("fresh start")
	if course != 2 || d.CurrentCourse() != 2 {
		t.Errorf("course = %d, want 2", course)
	}
	if len(archived) != 2 {
		t.Errorf("archived %d messages, want 2", len(archived))
	}
	msgs := d.Msgs()
	if len(msgs) != 1 || msgs[0].Type != MsgPrompting || msgs[0].Content != "fresh start" {
		t.Errorf("new course msgs = %+v", msgs)
	}
	if msgs[0].GenSeq != 1 {
		t.Errorf("new course prompt genseq = %d, want 1", msgs[0].GenSeq)
	}

	// Without a prompt the new course starts empty at genseq 0.
	_, course = d.StartNewCourse("")
	if course != 3 || d.MsgCount() != 0 || d.ActiveGenSeq() != 0 {
		t.Errorf("course=%d msgs=%d genseq=%d, want 3/0/0", course, d.MsgCount(), d.ActiveGenSeq())
	}
}

func TestLastSaying(t *testing.T) {
	d := NewRoot("alice", "alice")
	if _, ok := d.LastSaying(); ok {
		t.Error("empty dialog has a last saying")
	}
	d.AddChatMessages(
		ChatMessage{Type: MsgSaying, Content: "first", GenSeq: 1},
		ChatMessage{Type: MsgSaying, Content: "second", GenSeq: 2},
		NewEnvironment("noise"),
	)
	say, ok := d.LastSaying()
	if !ok || say.Content != "second" {
		t.Errorf("LastSaying = %+v, %v", say, ok)
	}
}

func TestRestoreCourse(t *testing.T) {
	d := NewRoot("alice", "alice")
	msgs := []ChatMessage{NewPrompting("m1", "hello", GrammarMarkdown, 1)}
	d.RestoreCourse(3, 7, msgs)
	if d.CurrentCourse() != 3 || d.ActiveGenSeq() != 7 || d.MsgCount() != 1 {
		t.Errorf("restored course=%d genseq=%d msgs=%d", d.CurrentCourse(), d.ActiveGenSeq(), d.MsgCount())
	}
	// The restored slice is a copy.
	msgs[0].Content = "mutated"
	if got := d.Msgs()[0].Content; got != "hello" {
		t.Errorf("restored message aliased caller slice: %q", got)
	}
}

func TestMessageRoles(t *testing.T) {
	tests := []struct {
		typ  MessageType
		role string
	}{
		{MsgPrompting, "user"},
		{MsgEnvironment, "user"},
		{MsgSaying, "assistant"},
		{MsgThinking, "assistant"},
		{MsgFuncCall, "assistant"},
		{MsgFuncResult, "tool"},
		{MsgTellaskResult, "tool"},
		{MsgUIOnlyMarkdown, "user"},
	}
	for _, tt := range tests {
		if got := (ChatMessage{Type: tt.typ}).Role(); got != tt.role {
			t.Errorf("Role(%s) = %q, want %q", tt.typ, got, tt.role)
		}
	}
	if (ChatMessage{Type: MsgUIOnlyMarkdown}).VisibleToLLM() {
		t.Error("ui_only_markdown is visible to the LLM")
	}
	if !(ChatMessage{Type: MsgSaying}).VisibleToLLM() {
		t.Error("saying is not visible to the LLM")
	}
}

func TestRegistrySessions(t *testing.T) {
	reg := NewRegistry()
	root := RootID("alice")
	subID := SubID("alice", "bob.plan.v1")
	sub := NewSub(subID, "bob", &Assignment{TellaskHead: "@bob plan", CallerDialogID: root})
	if err := reg.Add(sub); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(sub); err == nil {
		t.Error("duplicate Add did not fail")
	}
	reg.RegisterSubdialog(root, "bob", "plan.v1", subID)
	got, ok := reg.LookupRegistered(root, "bob", "plan.v1")
	if !ok || got != subID {
		t.Errorf("LookupRegistered = %v, %v", got, ok)
	}
	// Remove drops the session registration too.
	reg.Remove(subID)
	if _, ok := reg.LookupRegistered(root, "bob", "plan.v1"); ok {
		t.Error("registration survived Remove")
	}
	if _, ok := reg.Get(subID); ok {
		t.Error("dialog survived Remove")
	}
}

func TestReminders(t *testing.T) {
	d := NewRoot("alice", "alice")
	v0 := d.RemindersVersion()
	d.UpsertReminder(Reminder{ID: "r1", OwnerTool: "remind", Content: "check CI"})
	d.UpsertReminder(Reminder{ID: "r2", OwnerTool: "remind", Content: "ship notes"})
	if len(d.Reminders()) != 2 {
		t.Fatalf("reminders = %d, want 2", len(d.Reminders()))
	}
	// Upsert replaces by ID.
	d.UpsertReminder(Reminder{ID: "r1", OwnerTool: "remind", Content: "check CI again"})
	rs := d.Reminders()
	if len(rs) != 2 {
		t.Fatalf("reminders = %d after upsert, want 2", len(rs))
	}
	d.RemoveReminder("r2")
	if len(d.Reminders()) != 1 {
		t.Errorf("reminders = %d after remove, want 1", len(d.Reminders()))
	}
	if d.RemindersVersion() == v0 {
		t.Error("reminders version did not advance")
	}
}
