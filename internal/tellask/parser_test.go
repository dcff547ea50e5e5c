package tellask

import (
	"strings"
	"testing"
)

type captureReceiver struct {
	markdown strings.Builder
	starts   int
	finishes int
}

func (c *captureReceiver) MarkdownStart()            { c.starts++ }
func (c *captureReceiver) MarkdownChunk(text string) { c.markdown.WriteString(text) }
func (c *captureReceiver) MarkdownFinish()           { c.finishes++ }

func parse(t *testing.T, chunks ...string) (*captureReceiver, []Call) {
	t.Helper()
	rcv := &captureReceiver{}
	p := NewLineParser(rcv)
	for _, ch := range chunks {
		p.TakeUpstreamChunk(ch)
	}
	p.Finalize()
	return rcv, p.CollectedCalls()
}

func TestLineParserMarkdownOnly(t *testing.T) {
	rcv, calls := parse(t, "Hello there.\nSecond line.\n")
	if len(calls) != 0 {
		t.Fatalf("got %d calls, want 0", len(calls))
	}
	if got := rcv.markdown.String(); got != "Hello there.\nSecond line.\n" {
		t.Errorf("markdown = %q", got)
	}
	if rcv.starts != 1 || rcv.finishes != 1 {
		t.Errorf("markdown start/finish = %d/%d, want 1/1", rcv.starts, rcv.finishes)
	}
}

func TestLineParserSingleBlock(t *testing.T) {
	_, calls := parse(t, "@alice please review\n\nThe details are attached.\n")
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	c := calls[0]
	if !c.Valid {
		t.Fatalf("call invalid: %s", c.Reason)
	}
	if c.TellaskHead != "@alice please review" {
		t.Errorf("head = %q", c.TellaskHead)
	}
	if c.FirstMention != "alice" {
		t.Errorf("first mention = %q", c.FirstMention)
	}
	if c.Body != "The details are attached." {
		t.Errorf("body = %q", c.Body)
	}
	if c.CallID == "" {
		t.Error("call id is empty")
	}
}

func TestLineParserMixedAndMultipleBlocks(t *testing.T) {
	rcv, calls := parse(t,
		"Some intro text.\n",
		"@alice first ask\n", "body one\n", "\n",
		"@bob second ask\n", "body two\n")
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].FirstMention != "alice" || calls[1].FirstMention != "bob" {
		t.Errorf("mentions = %q, %q", calls[0].FirstMention, calls[1].FirstMention)
	}
	if calls[0].CallID == calls[1].CallID {
		t.Error("call ids are not distinct")
	}
	if got := rcv.markdown.String(); got != "Some intro text.\n" {
		t.Errorf("markdown = %q", got)
	}
}

func TestLineParserChunkBoundaries(t *testing.T) {
	// The same saying split at awkward byte boundaries parses identically.
	_, whole := parse(t, "@alice do the thing\n\nwith care\n")
	_, split := parse(t, "@ali", "ce do the", " thing\n\nwith", " care\n")
	if len(whole) != 1 || len(split) != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", len(whole), len(split))
	}
	if whole[0].TellaskHead != split[0].TellaskHead || whole[0].Body != split[0].Body {
		t.Errorf("split parse differs: %+v vs %+v", whole[0], split[0])
	}
}

func TestLineParserMalformedHeadline(t *testing.T) {
	_, calls := parse(t, "@123 not a name\n")
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Valid {
		t.Error("call should be invalid")
	}
	if calls[0].Reason == "" {
		t.Error("invalid call carries no reason")
	}
}

func TestLineParserFinalizeFlushesTrailingLine(t *testing.T) {
	// No trailing newline: Finalize must still surface the block.
	rcv := &captureReceiver{}
	p := NewLineParser(rcv)
	p.TakeUpstreamChunk("@alice trailing")
	p.Finalize()
	calls := p.CollectedCalls()
	if len(calls) != 1 || calls[0].FirstMention != "alice" {
		t.Fatalf("calls = %+v, want one @alice call", calls)
	}
	// Finalize is idempotent.
	p.Finalize()
	if len(p.CollectedCalls()) != 1 {
		t.Error("second Finalize changed collected calls")
	}
}
