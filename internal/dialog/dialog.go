package dialog

import "sync"

// Kind discriminates the two dialog variants.
type Kind string

const (
	KindRoot Kind = "root"
	KindSub  Kind = "sub"
)

// Dialog is one conversation owned by a single agent. Msgs holds the
// current course only; earlier courses live in the store. Msgs, reminders
// and the diligence budget are mutated only while the dialog's drive lock
// is held.
type Dialog struct {
	ID      ID
	Kind    Kind
	AgentID string

	mu sync.Mutex

	currentCourse int
	activeGenSeq  int
	msgs          []ChatMessage

	reminders    []Reminder
	remindersVer int

	TaskDocPath          string
	LastUserLanguageCode string
	LastContextHealth    *ContextHealth

	// root only
	DiligencePushRemainingBudget int
	DisableDiligencePush         bool

	// sub only
	Assignment *Assignment
}

// NewRoot creates a root dialog owned by the given agent.
func NewRoot(id string, agentID string) *Dialog {
	return &Dialog{ID: RootID(id), Kind: KindRoot, AgentID: agentID, currentCourse: 1}
}

// NewSub creates a subdialog of the given root with its assignment.
func NewSub(id ID, agentID string, asg *Assignment) *Dialog {
	return &Dialog{ID: id, Kind: KindSub, AgentID: agentID, Assignment: asg, currentCourse: 1}
}

// IsRoot reports whether this dialog is a root.
func (d *Dialog) IsRoot() bool { return d.Kind == KindRoot }

// CurrentCourse returns the current course number.
func (d *Dialog) CurrentCourse() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentCourse
}

// ActiveGenSeq returns the current generation sequence.
func (d *Dialog) ActiveGenSeq() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeGenSeq
}

// NextGenSeq advances and returns the generation sequence. Strictly
// increasing within a course.
func (d *Dialog) NextGenSeq() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeGenSeq++
	return d.activeGenSeq
}

// Msgs returns a copy of the current course's messages.
func (d *Dialog) Msgs() []ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ChatMessage, len(d.msgs))
	copy(out, d.msgs)
	return out
}

// LastSaying returns the last assistant saying message of the current
// course, if any. Used to extract a supdialog's reply after a Type A drive.
func (d *Dialog) LastSaying() (ChatMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.msgs) - 1; i >= 0; i-- {
		if d.msgs[i].Type == MsgSaying {
			return d.msgs[i], true
		}
	}
	return ChatMessage{}, false
}

// MsgCount returns the number of messages in the current course.
func (d *Dialog) MsgCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

// AddChatMessages appends messages in order to the current course.
func (d *Dialog) AddChatMessages(msgs ...ChatMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msgs...)
}

// RestoreCourse loads persisted state into the dialog, replacing the
// in-memory course. Used on revival after a crash or process restart.
func (d *Dialog) RestoreCourse(course, genseq int, msgs []ChatMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if course > 0 {
		d.currentCourse = course
	}
	d.activeGenSeq = genseq
	d.msgs = append([]ChatMessage(nil), msgs...)
}

// StartNewCourse clears the mind: bumps the course number, resets the
// generation sequence and drops the old course's messages, returning them
// so the caller can archive them. The prompt, if non-empty, becomes the
// first prompting message of the new course.
func (d *Dialog) StartNewCourse(prompt string) (archived []ChatMessage, newCourse int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	archived = d.msgs
	d.msgs = nil
	d.currentCourse++
	d.activeGenSeq = 0
	d.LastContextHealth = nil
	if prompt != "" {
		d.activeGenSeq++
		d.msgs = append(d.msgs, ChatMessage{Type: MsgPrompting, Content: prompt, Grammar: GrammarMarkdown, GenSeq: d.activeGenSeq})
	}
	return archived, d.currentCourse
}

// CallerDialogID returns the caller of a subdialog, or a zero ID for roots.
func (d *Dialog) CallerDialogID() ID {
	if d.Assignment == nil {
		return ID{}
	}
	return d.Assignment.CallerDialogID
}

// SupdialogID returns the ID of this subdialog's direct supdialog: the
// caller when set, otherwise the root.
func (d *Dialog) SupdialogID() ID {
	if d.IsRoot() {
		return ID{}
	}
	if caller := d.CallerDialogID(); !caller.IsZero() {
		return caller
	}
	return d.ID.RootDialogID()
}
