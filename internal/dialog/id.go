package dialog

import "strings"

// ID identifies a dialog within a workspace. A dialog is a root iff
// Self == Root; otherwise it is a subdialog of the root dialog.
type ID struct {
	Self string `json:"self" yaml:"self"`
	Root string `json:"root" yaml:"root"`
}

// RootID builds the ID of a root dialog.
func RootID(id string) ID {
	return ID{Self: id, Root: id}
}

// SubID builds the ID of a subdialog under the given root.
func SubID(root, self string) ID {
	return ID{Self: self, Root: root}
}

// Key returns the canonical "root/self" key used for lock tables,
// registries, and persistence paths.
func (id ID) Key() string {
	return id.Root + "/" + id.Self
}

// IsRoot reports whether this dialog is its own root.
func (id ID) IsRoot() bool {
	return id.Self == id.Root
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Self == "" && id.Root == ""
}

// ParseKey parses a "root/self" key back into an ID. Returns false when
// the key is not in the canonical two-segment form.
func ParseKey(key string) (ID, bool) {
	root, self, ok := strings.Cut(key, "/")
	if !ok || root == "" || self == "" {
		return ID{}, false
	}
	return ID{Self: self, Root: root}, true
}

// RootDialogID returns the ID of this dialog's root.
func (id ID) RootDialogID() ID {
	return RootID(id.Root)
}
