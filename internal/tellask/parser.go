package tellask

import (
	"strings"

	"github.com/google/uuid"
)

// LineParser is the reference stream parser. A tellask block opens on a
// line whose first non-space character is '@' (the headline) and collects
// the following lines as body until a blank line followed by another
// headline, or end of stream. Everything outside blocks is routed to the
// receiver as markdown.
//
// The production grammar lives upstream; the driver only depends on the
// StreamParser contract, so a richer parser drops in without driver
// changes.
type LineParser struct {
	rcv EventReceiver

	buf       strings.Builder
	calls     []Call
	inBlock   bool
	head      string
	bodyLines []string
	mdOpen    bool
	finalized bool
}

// NewLineParser builds a LineParser wired to rcv.
func NewLineParser(rcv EventReceiver) StreamParser {
	return &LineParser{rcv: rcv}
}

func (p *LineParser) TakeUpstreamChunk(text string) {
	p.buf.WriteString(text)
	for {
		s := p.buf.String()
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			return
		}
		line := s[:idx]
		p.buf.Reset()
		p.buf.WriteString(s[idx+1:])
		p.takeLine(line)
	}
}

func (p *LineParser) takeLine(line string) {
	trimmed := strings.TrimSpace(line)
	isHeadline := strings.HasPrefix(trimmed, "@")

	if p.inBlock {
		if isHeadline && len(p.bodyLines) > 0 && p.bodyLines[len(p.bodyLines)-1] == "" {
			p.closeBlock()
			p.openBlock(trimmed)
			return
		}
		p.bodyLines = append(p.bodyLines, trimmed)
		return
	}

	if isHeadline {
		p.closeMarkdown()
		p.openBlock(trimmed)
		return
	}

	if !p.mdOpen {
		if trimmed == "" {
			return
		}
		p.rcv.MarkdownStart()
		p.mdOpen = true
	}
	p.rcv.MarkdownChunk(line + "\n")
}

func (p *LineParser) openBlock(head string) {
	p.inBlock = true
	p.head = head
	p.bodyLines = nil
}

func (p *LineParser) closeBlock() {
	if !p.inBlock {
		return
	}
	body := strings.TrimSpace(strings.Join(p.bodyLines, "\n"))
	call := Call{
		TellaskHead: p.head,
		Body:        body,
		CallID:      uuid.NewString(),
	}
	if first := FirstMention(p.head); first != "" {
		call.Valid = true
		call.FirstMention = first
	} else {
		call.Reason = "headline has no addressable @mention"
	}
	p.calls = append(p.calls, call)
	p.inBlock = false
	p.head = ""
	p.bodyLines = nil
}

func (p *LineParser) closeMarkdown() {
	if p.mdOpen {
		p.rcv.MarkdownFinish()
		p.mdOpen = false
	}
}

// Finalize flushes the trailing partial line and closes any open block.
func (p *LineParser) Finalize() {
	if p.finalized {
		return
	}
	p.finalized = true
	if rest := p.buf.String(); rest != "" {
		p.buf.Reset()
		p.takeLine(rest)
	}
	p.closeBlock()
	p.closeMarkdown()
}

// CollectedCalls returns the calls collected so far, each with a distinct
// parser-allocated CallID.
func (p *LineParser) CollectedCalls() []Call {
	return p.calls
}
