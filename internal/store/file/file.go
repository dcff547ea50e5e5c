// Package file implements the store facade as a per-dialog YAML directory
// layout under <workspace>/dialogs/<root>/<self>/.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/store"
)

// Store persists dialog state as YAML files. Writes are atomic
// (temp file + rename) and guarded by a single store mutex; per-dialog
// suspension serialization is the driver's job.
type Store struct {
	mu   sync.Mutex
	base string
}

// New creates (if needed) and opens a file store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "dialogs"), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{base: baseDir}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) dialogDir(id dialog.ID) string {
	return filepath.Join(s.base, "dialogs", sanitize(id.Root), sanitize(id.Self))
}

func (s *Store) rootDir(root dialog.ID) string {
	return filepath.Join(s.base, "dialogs", sanitize(root.Root))
}

func sanitize(seg string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, seg)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// readYAML loads path into v. Returns false when the file does not exist.
func readYAML(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// --- latest state ---

func (s *Store) LoadDialogLatest(id dialog.ID) (*store.LatestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLatestLocked(id)
}

func (s *Store) loadLatestLocked(id dialog.ID) (*store.LatestState, error) {
	var st store.LatestState
	ok, err := readYAML(filepath.Join(s.dialogDir(id), "latest.yaml"), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SaveDialogLatest(st *store.LatestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.loadLatestLocked(st.ID)
	if err != nil {
		return err
	}
	if prev != nil && prev.RunState.IsDead() && !st.RunState.IsDead() {
		return store.ErrDeadDialog
	}
	cp := *st
	cp.UpdatedAt = time.Now().UTC()
	return writeYAML(filepath.Join(s.dialogDir(st.ID), "latest.yaml"), &cp)
}

func (s *Store) SetDialogRunState(id dialog.ID, rs dialog.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLatestLocked(id)
	if err != nil {
		return err
	}
	if st == nil {
		st = &store.LatestState{ID: id}
		if id.IsRoot() {
			st.Kind = dialog.KindRoot
		} else {
			st.Kind = dialog.KindSub
		}
	}
	if st.RunState.IsDead() {
		// Dead is terminal; drop the write silently so crash-recovery
		// finalizers cannot resurrect an archived subdialog.
		return nil
	}
	st.RunState = rs
	st.UpdatedAt = time.Now().UTC()
	return writeYAML(filepath.Join(s.dialogDir(id), "latest.yaml"), st)
}

// --- messages ---

func (s *Store) SaveMessages(id dialog.ID, course int, msgs []dialog.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dialogDir(id), fmt.Sprintf("course-%04d.yaml", course))
	return writeYAML(path, msgs)
}

func (s *Store) LoadMessages(id dialog.ID, course int) ([]dialog.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []dialog.ChatMessage
	path := filepath.Join(s.dialogDir(id), fmt.Sprintf("course-%04d.yaml", course))
	if _, err := readYAML(path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// --- questions for human ---

func (s *Store) AppendQuestion4Human(id dialog.ID, q dialog.HumanQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dialogDir(id), "q4h.yaml")
	var qs []dialog.HumanQuestion
	if _, err := readYAML(path, &qs); err != nil {
		return err
	}
	for _, existing := range qs {
		if existing.ID == q.ID {
			return nil
		}
	}
	qs = append(qs, q)
	return writeYAML(path, qs)
}

func (s *Store) LoadQuestions4Human(id dialog.ID) ([]dialog.HumanQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var qs []dialog.HumanQuestion
	if _, err := readYAML(filepath.Join(s.dialogDir(id), "q4h.yaml"), &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *Store) ResolveQuestion4Human(id dialog.ID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dialogDir(id), "q4h.yaml")
	var qs []dialog.HumanQuestion
	if _, err := readYAML(path, &qs); err != nil {
		return err
	}
	kept := qs[:0]
	for _, q := range qs {
		if q.ID != questionID {
			kept = append(kept, q)
		}
	}
	return writeYAML(path, kept)
}

// --- pending subdialogs ---

func (s *Store) LoadPendingSubdialogs(id dialog.ID) ([]dialog.PendingSubdialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []dialog.PendingSubdialog
	if _, err := readYAML(filepath.Join(s.dialogDir(id), "pending.yaml"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) SavePendingSubdialogs(id dialog.ID, recs []dialog.PendingSubdialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeYAML(filepath.Join(s.dialogDir(id), "pending.yaml"), recs)
}

// --- subdialog response queue ---

func (s *Store) AppendSubdialogResponse(id dialog.ID, rec dialog.SubdialogResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dialogDir(id), "responses.yaml")
	var recs []dialog.SubdialogResponse
	if _, err := readYAML(path, &recs); err != nil {
		return err
	}
	for _, existing := range recs {
		if existing.ResponseID == rec.ResponseID {
			return nil
		}
	}
	recs = append(recs, rec)
	return writeYAML(path, recs)
}

func (s *Store) LoadSubdialogResponses(id dialog.ID) ([]dialog.SubdialogResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []dialog.SubdialogResponse
	if _, err := readYAML(filepath.Join(s.dialogDir(id), "responses.yaml"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// TakeSubdialogResponses moves the queue to a staging file. A crash between
// take and commit leaves the staging file in place; the next take prepends
// it back so no response is lost.
func (s *Store) TakeSubdialogResponses(id dialog.ID) (*store.Take, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.dialogDir(id)
	queuePath := filepath.Join(dir, "responses.yaml")
	stagePath := filepath.Join(dir, "responses-taken.yaml")

	var staged, queued []dialog.SubdialogResponse
	if _, err := readYAML(stagePath, &staged); err != nil {
		return nil, err
	}
	if _, err := readYAML(queuePath, &queued); err != nil {
		return nil, err
	}
	all := append(staged, queued...)
	if err := writeYAML(stagePath, all); err != nil {
		return nil, err
	}
	if err := writeYAML(queuePath, []dialog.SubdialogResponse{}); err != nil {
		return nil, err
	}
	return &store.Take{DialogID: id, Responses: all}, nil
}

func (s *Store) CommitTake(t *store.Take) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stagePath := filepath.Join(s.dialogDir(t.DialogID), "responses-taken.yaml")
	if err := os.Remove(stagePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) RollbackTake(t *store.Take) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.dialogDir(t.DialogID)
	queuePath := filepath.Join(dir, "responses.yaml")
	stagePath := filepath.Join(dir, "responses-taken.yaml")
	var queued []dialog.SubdialogResponse
	if _, err := readYAML(queuePath, &queued); err != nil {
		return err
	}
	// Taken responses go back to the front, preserving FIFO order.
	restored := append(append([]dialog.SubdialogResponse(nil), t.Responses...), queued...)
	if err := writeYAML(queuePath, restored); err != nil {
		return err
	}
	if err := os.Remove(stagePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// --- needs-drive ---

type needsDriveFile struct {
	Flag   bool   `yaml:"flag"`
	Status string `yaml:"status,omitempty"`
}

func (s *Store) SetNeedsDrive(id dialog.ID, flag bool, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.rootDir(id), "needs-drive.yaml")
	return writeYAML(path, needsDriveFile{Flag: flag, Status: status})
}

func (s *Store) ListNeedsDrive() ([]dialog.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(s.base, "dialogs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []dialog.ID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var nd needsDriveFile
		ok, err := readYAML(filepath.Join(s.base, "dialogs", e.Name(), "needs-drive.yaml"), &nd)
		if err != nil || !ok || !nd.Flag {
			continue
		}
		out = append(out, dialog.RootID(e.Name()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out, nil
}

// --- assignment + registered subdialogs ---

func (s *Store) UpdateSubdialogAssignment(id dialog.ID, asg *dialog.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLatestLocked(id)
	if err != nil {
		return err
	}
	if st == nil {
		st = &store.LatestState{ID: id, Kind: dialog.KindSub}
	}
	st.Assignment = asg
	st.UpdatedAt = time.Now().UTC()
	return writeYAML(filepath.Join(s.dialogDir(id), "latest.yaml"), st)
}

func (s *Store) RegisterSubdialog(root dialog.ID, rec dialog.RegisteredSubdialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.rootDir(root), "registered.yaml")
	var recs []dialog.RegisteredSubdialog
	if _, err := readYAML(path, &recs); err != nil {
		return err
	}
	for i, existing := range recs {
		if existing.TargetAgentID == rec.TargetAgentID && existing.TellaskSession == rec.TellaskSession {
			recs[i] = rec
			return writeYAML(path, recs)
		}
	}
	recs = append(recs, rec)
	return writeYAML(path, recs)
}

func (s *Store) ListRegisteredSubdialogs(root dialog.ID) ([]dialog.RegisteredSubdialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []dialog.RegisteredSubdialog
	if _, err := readYAML(filepath.Join(s.rootDir(root), "registered.yaml"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// --- problems ---

func (s *Store) UpsertProblem(p store.Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.base, "problems.yaml")
	var probs []store.Problem
	if _, err := readYAML(path, &probs); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	for i, existing := range probs {
		if existing.Kind == p.Kind && existing.DialogKey == p.DialogKey {
			probs[i] = p
			return writeYAML(path, probs)
		}
	}
	probs = append(probs, p)
	return writeYAML(path, probs)
}

func (s *Store) ListProblems() ([]store.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var probs []store.Problem
	if _, err := readYAML(filepath.Join(s.base, "problems.yaml"), &probs); err != nil {
		return nil, err
	}
	return probs, nil
}
