package dialog

// Reminder is one reminder item, possibly owned by a tool. Owner-rendered
// reminders carry their full text in Rendered; otherwise Content is wrapped
// in the default environment format at context-assembly time.
type Reminder struct {
	ID        string `json:"id" yaml:"id"`
	OwnerTool string `json:"owner_tool,omitempty" yaml:"owner_tool,omitempty"`
	Content   string `json:"content" yaml:"content"`
	Rendered  string `json:"rendered,omitempty" yaml:"rendered,omitempty"`
}

// Reminders returns a copy of the reminder set.
func (d *Dialog) Reminders() []Reminder {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Reminder, len(d.reminders))
	copy(out, d.reminders)
	return out
}

// RemindersVersion returns the monotonically-increasing publication version.
func (d *Dialog) RemindersVersion() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remindersVer
}

// UpsertReminder adds a reminder or replaces one with the same ID.
func (d *Dialog) UpsertReminder(r Reminder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.reminders {
		if d.reminders[i].ID == r.ID {
			d.reminders[i] = r
			d.remindersVer++
			return
		}
	}
	d.reminders = append(d.reminders, r)
	d.remindersVer++
}

// RemoveReminder deletes a reminder by ID. Reports whether it existed.
func (d *Dialog) RemoveReminder(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.reminders {
		if d.reminders[i].ID == id {
			d.reminders = append(d.reminders[:i], d.reminders[i+1:]...)
			d.remindersVer++
			return true
		}
	}
	return false
}

// ClearToolReminders removes all reminders owned by the given tool.
func (d *Dialog) ClearToolReminders(tool string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.reminders[:0]
	removed := 0
	for _, r := range d.reminders {
		if r.OwnerTool == tool {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	d.reminders = kept
	if removed > 0 {
		d.remindersVer++
	}
	return removed
}
