package minds

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultDiligenceText = "No human input arrived. Keep pushing: review your task, " +
	"pick the most valuable next step, and carry it out. If you are genuinely blocked " +
	"on a decision only the human can make, ask with @human."

// Diligence is the resolved diligence-push text for one load.
type Diligence struct {
	Text     string
	Disabled bool // an explicitly empty file disables the push
}

// LoadDiligence resolves the diligence text: .minds/diligence.<lang>.md
// first, then .minds/diligence.md. An existing file whose body is empty
// after frontmatter stripping is an explicit disable. Read errors fall back
// to the built-in default.
func (l *Loader) LoadDiligence(lang string) Diligence {
	for _, name := range fallbackNames("diligence", lang) {
		data, err := os.ReadFile(filepath.Join(l.mindsDir(), name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Diligence{Text: defaultDiligenceText}
		}
		body := strings.TrimSpace(StripFrontmatter(string(data)))
		if body == "" {
			return Diligence{Disabled: true}
		}
		return Diligence{Text: body}
	}
	return Diligence{Text: defaultDiligenceText}
}
