package tellask

import (
	"reflect"
	"testing"
)

func TestMentions(t *testing.T) {
	tests := []struct {
		name string
		head string
		want []string
	}{
		{"single", "@alice please review", []string{"alice"}},
		{"multiple", "@alice @bob split this up", []string{"alice", "bob"}},
		{"dedup keeps first order", "@bob @alice @bob again", []string{"bob", "alice"}},
		{"mid-word at is not a mention", "mail me at x@example.com", nil},
		{"leading digit is not a name", "@123 nope", nil},
		{"hyphen and underscore", "@data-team_2 go", []string{"data-team_2"}},
		{"none", "just prose", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mentions(tt.head)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Mentions(%q) = %v, want %v", tt.head, got, tt.want)
			}
		})
	}
}

func TestFirstMention(t *testing.T) {
	if got := FirstMention("@bob @alice"); got != "bob" {
		t.Errorf("FirstMention = %q, want bob", got)
	}
	if got := FirstMention("no mentions here"); got != "" {
		t.Errorf("FirstMention = %q, want empty", got)
	}
}

func TestSessionDirectives(t *testing.T) {
	tests := []struct {
		name string
		head string
		want []string
	}{
		{"none", "@alice hello", nil},
		{"valid", "@bob !tellaskSession plan.v1 continue", []string{"plan.v1"}},
		{"missing id", "@bob !tellaskSession", []string{""}},
		{"invalid id", "@bob !tellaskSession 1bad", []string{""}},
		{"two directives", "@bob !tellaskSession a !tellaskSession b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SessionDirectives(tt.head)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SessionDirectives(%q) = %v, want %v", tt.head, got, tt.want)
			}
		})
	}
}

func TestValidSessionID(t *testing.T) {
	valid := []string{"a", "plan.v1", "Work_2.sub-task", "x.y.z"}
	invalid := []string{"", "1plan", ".a", "a.", "a..b", "a b", "a.1x"}
	for _, id := range valid {
		if !ValidSessionID(id) {
			t.Errorf("ValidSessionID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if ValidSessionID(id) {
			t.Errorf("ValidSessionID(%q) = true, want false", id)
		}
	}
}

func TestRewriteMention(t *testing.T) {
	got := RewriteMention("@alice and @bob and @alice", "alice", "carol")
	want := "@carol and @bob and @carol"
	if got != want {
		t.Errorf("RewriteMention = %q, want %q", got, want)
	}
	// Untouched when the name is absent.
	if got := RewriteMention("@bob only", "alice", "carol"); got != "@bob only" {
		t.Errorf("RewriteMention = %q, want unchanged", got)
	}
}

func TestStripSessionDirective(t *testing.T) {
	got := StripSessionDirective("@self !tellaskSession pool.v2  think hard")
	want := "@self think hard"
	if got != want {
		t.Errorf("StripSessionDirective = %q, want %q", got, want)
	}
}
