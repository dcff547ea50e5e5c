// Package tellask models the structured teammate-call blocks the streaming
// parser extracts from assistant output, and the headline syntax the
// executor classifies on.
package tellask

// Reserved mention aliases.
const (
	AliasSelf      = "self"      // rewrites to the current dialog's agent
	AliasTellasker = "tellasker" // a subdialog's direct supdialog
	AliasHuman     = "human"     // question for human (Q4H)
	AliasDominds   = "dominds"   // system notice identity; never a call target
)

// Call is one collected tellask call. The parser allocates CallID before
// execution; every collected call carries a distinct one.
type Call struct {
	TellaskHead string
	Body        string
	CallID      string

	// Validation outcome.
	Valid        bool
	FirstMention string // set when Valid
	Reason       string // set when malformed
}

// EventReceiver is the driver-side sink for non-tellask markdown in the
// parsed stream.
type EventReceiver interface {
	MarkdownStart()
	MarkdownChunk(text string)
	MarkdownFinish()
}

// StreamParser consumes assistant saying text chunk by chunk and collects
// tellask calls. Finalize must be called before CollectedCalls.
type StreamParser interface {
	TakeUpstreamChunk(text string)
	Finalize()
	CollectedCalls() []Call
}

// ParserFactory builds a parser per saying, wired to the driver's receiver.
type ParserFactory func(rcv EventReceiver) StreamParser
