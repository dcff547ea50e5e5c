// Package sqlite implements the store facade on a single SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS dialog_latest (
	dialog_key TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dialog_messages (
	dialog_key TEXT NOT NULL,
	course     INTEGER NOT NULL,
	msgs       TEXT NOT NULL,
	PRIMARY KEY (dialog_key, course)
);
CREATE TABLE IF NOT EXISTS q4h (
	question_id TEXT PRIMARY KEY,
	dialog_key  TEXT NOT NULL,
	record      TEXT NOT NULL,
	asked_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_subdialogs (
	dialog_key TEXT PRIMARY KEY,
	records    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subdialog_responses (
	response_id TEXT PRIMARY KEY,
	dialog_key  TEXT NOT NULL,
	record      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	taken       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS needs_drive (
	root_key TEXT PRIMARY KEY,
	flag     INTEGER NOT NULL,
	status   TEXT
);
CREATE TABLE IF NOT EXISTS registered_subdialogs (
	root_key        TEXT NOT NULL,
	target_agent_id TEXT NOT NULL,
	tellask_session TEXT NOT NULL,
	subdialog_key   TEXT NOT NULL,
	PRIMARY KEY (root_key, target_agent_id, tellask_session)
);
CREATE TABLE IF NOT EXISTS problems (
	kind       TEXT NOT NULL,
	dialog_key TEXT NOT NULL,
	record     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (kind, dialog_key)
);
`

// Store implements store.Store backed by SQLite via modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time; a single conn avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- latest state ---

func (s *Store) LoadDialogLatest(id dialog.ID) (*store.LatestState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM dialog_latest WHERE dialog_key = ?`, id.Key()).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st store.LatestState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode latest state: %w", err)
	}
	return &st, nil
}

func (s *Store) SaveDialogLatest(st *store.LatestState) error {
	prev, err := s.LoadDialogLatest(st.ID)
	if err != nil {
		return err
	}
	if prev != nil && prev.RunState.IsDead() && !st.RunState.IsDead() {
		return store.ErrDeadDialog
	}
	cp := *st
	cp.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(&cp)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO dialog_latest (dialog_key, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (dialog_key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		st.ID.Key(), string(raw), cp.UpdatedAt)
	return err
}

func (s *Store) SetDialogRunState(id dialog.ID, rs dialog.RunState) error {
	st, err := s.LoadDialogLatest(id)
	if err != nil {
		return err
	}
	if st == nil {
		st = &store.LatestState{ID: id, Kind: dialog.KindSub}
		if id.IsRoot() {
			st.Kind = dialog.KindRoot
		}
	}
	if st.RunState.IsDead() {
		return nil // dead is terminal
	}
	st.RunState = rs
	return s.SaveDialogLatest(st)
}

// --- messages ---

func (s *Store) SaveMessages(id dialog.ID, course int, msgs []dialog.ChatMessage) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO dialog_messages (dialog_key, course, msgs) VALUES (?, ?, ?)
		 ON CONFLICT (dialog_key, course) DO UPDATE SET msgs = excluded.msgs`,
		id.Key(), course, string(raw))
	return err
}

func (s *Store) LoadMessages(id dialog.ID, course int) ([]dialog.ChatMessage, error) {
	var raw string
	err := s.db.QueryRow(`SELECT msgs FROM dialog_messages WHERE dialog_key = ? AND course = ?`,
		id.Key(), course).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []dialog.ChatMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// --- questions for human ---

func (s *Store) AppendQuestion4Human(id dialog.ID, q dialog.HumanQuestion) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO q4h (question_id, dialog_key, record, asked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (question_id) DO NOTHING`,
		q.ID, id.Key(), string(raw), q.AskedAt)
	return err
}

func (s *Store) LoadQuestions4Human(id dialog.ID) ([]dialog.HumanQuestion, error) {
	rows, err := s.db.Query(`SELECT record FROM q4h WHERE dialog_key = ? ORDER BY asked_at, question_id`, id.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dialog.HumanQuestion
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var q dialog.HumanQuestion
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ResolveQuestion4Human(id dialog.ID, questionID string) error {
	_, err := s.db.Exec(`DELETE FROM q4h WHERE dialog_key = ? AND question_id = ?`, id.Key(), questionID)
	return err
}

// --- pending subdialogs ---

func (s *Store) LoadPendingSubdialogs(id dialog.ID) ([]dialog.PendingSubdialog, error) {
	var raw string
	err := s.db.QueryRow(`SELECT records FROM pending_subdialogs WHERE dialog_key = ?`, id.Key()).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []dialog.PendingSubdialog
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) SavePendingSubdialogs(id dialog.ID, recs []dialog.PendingSubdialog) error {
	if recs == nil {
		recs = []dialog.PendingSubdialog{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO pending_subdialogs (dialog_key, records) VALUES (?, ?)
		 ON CONFLICT (dialog_key) DO UPDATE SET records = excluded.records`,
		id.Key(), string(raw))
	return err
}

// --- subdialog response queue ---

func (s *Store) AppendSubdialogResponse(id dialog.ID, rec dialog.SubdialogResponse) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var maxSeq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM subdialog_responses WHERE dialog_key = ?`, id.Key()).Scan(&maxSeq); err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO subdialog_responses (response_id, dialog_key, record, seq, taken) VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (response_id) DO NOTHING`,
		rec.ResponseID, id.Key(), string(raw), maxSeq.Int64+1)
	return err
}

func (s *Store) loadResponses(id dialog.ID, takenOnly bool) ([]dialog.SubdialogResponse, error) {
	q := `SELECT record FROM subdialog_responses WHERE dialog_key = ? AND taken = ? ORDER BY seq`
	taken := 0
	if takenOnly {
		taken = 1
	}
	rows, err := s.db.Query(q, id.Key(), taken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dialog.SubdialogResponse
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec dialog.SubdialogResponse
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) LoadSubdialogResponses(id dialog.ID) ([]dialog.SubdialogResponse, error) {
	return s.loadResponses(id, false)
}

func (s *Store) TakeSubdialogResponses(id dialog.ID) (*store.Take, error) {
	// Previously taken but uncommitted rows (crash) come first, then the queue.
	staged, err := s.loadResponses(id, true)
	if err != nil {
		return nil, err
	}
	queued, err := s.loadResponses(id, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`UPDATE subdialog_responses SET taken = 1 WHERE dialog_key = ?`, id.Key()); err != nil {
		return nil, err
	}
	return &store.Take{DialogID: id, Responses: append(staged, queued...)}, nil
}

func (s *Store) CommitTake(t *store.Take) error {
	_, err := s.db.Exec(`DELETE FROM subdialog_responses WHERE dialog_key = ? AND taken = 1`, t.DialogID.Key())
	return err
}

func (s *Store) RollbackTake(t *store.Take) error {
	_, err := s.db.Exec(`UPDATE subdialog_responses SET taken = 0 WHERE dialog_key = ?`, t.DialogID.Key())
	return err
}

// --- needs-drive ---

func (s *Store) SetNeedsDrive(id dialog.ID, flag bool, status string) error {
	f := 0
	if flag {
		f = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO needs_drive (root_key, flag, status) VALUES (?, ?, ?)
		 ON CONFLICT (root_key) DO UPDATE SET flag = excluded.flag, status = excluded.status`,
		id.Root, f, status)
	return err
}

func (s *Store) ListNeedsDrive() ([]dialog.ID, error) {
	rows, err := s.db.Query(`SELECT root_key FROM needs_drive WHERE flag = 1 ORDER BY root_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dialog.ID
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, err
		}
		out = append(out, dialog.RootID(root))
	}
	return out, rows.Err()
}

// --- assignment + registered subdialogs ---

func (s *Store) UpdateSubdialogAssignment(id dialog.ID, asg *dialog.Assignment) error {
	st, err := s.LoadDialogLatest(id)
	if err != nil {
		return err
	}
	if st == nil {
		st = &store.LatestState{ID: id, Kind: dialog.KindSub}
	}
	st.Assignment = asg
	return s.SaveDialogLatest(st)
}

func (s *Store) RegisterSubdialog(root dialog.ID, rec dialog.RegisteredSubdialog) error {
	_, err := s.db.Exec(
		`INSERT INTO registered_subdialogs (root_key, target_agent_id, tellask_session, subdialog_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (root_key, target_agent_id, tellask_session) DO UPDATE SET subdialog_key = excluded.subdialog_key`,
		root.Root, rec.TargetAgentID, rec.TellaskSession, rec.SubdialogID.Key())
	return err
}

func (s *Store) ListRegisteredSubdialogs(root dialog.ID) ([]dialog.RegisteredSubdialog, error) {
	rows, err := s.db.Query(
		`SELECT target_agent_id, tellask_session, subdialog_key FROM registered_subdialogs WHERE root_key = ?`,
		root.Root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dialog.RegisteredSubdialog
	for rows.Next() {
		var rec dialog.RegisteredSubdialog
		var subKey string
		if err := rows.Scan(&rec.TargetAgentID, &rec.TellaskSession, &subKey); err != nil {
			return nil, err
		}
		if id, ok := dialog.ParseKey(subKey); ok {
			rec.SubdialogID = id
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- problems ---

func (s *Store) UpsertProblem(p store.Problem) error {
	p.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO problems (kind, dialog_key, record, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, dialog_key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		p.Kind, p.DialogKey, string(raw), p.UpdatedAt)
	return err
}

func (s *Store) ListProblems() ([]store.Problem, error) {
	rows, err := s.db.Query(`SELECT record FROM problems ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Problem
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p store.Problem
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
