package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dialogs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLatestRoundTripAndDead(t *testing.T) {
	s := newStore(t)
	id := dialog.RootID("alice")

	if latest, err := s.LoadDialogLatest(id); err != nil || latest != nil {
		t.Fatalf("absent latest = %v, %v", latest, err)
	}
	if err := s.SaveDialogLatest(&store.LatestState{
		ID:       id,
		Kind:     dialog.KindRoot,
		AgentID:  "alice",
		RunState: dialog.RunState{Kind: dialog.RunIdleWaitingUser},
		Course:   2,
		GenSeq:   7,
	}); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LoadDialogLatest(id)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Course != 2 || latest.GenSeq != 7 || latest.AgentID != "alice" {
		t.Errorf("latest = %+v", latest)
	}

	if err := s.SetDialogRunState(id, dialog.RunState{Kind: dialog.RunDead, Reason: dialog.StopSystem}); err != nil {
		t.Fatal(err)
	}
	err = s.SaveDialogLatest(&store.LatestState{ID: id, Kind: dialog.KindRoot, RunState: dialog.RunState{Kind: dialog.RunProceeding}})
	if err != store.ErrDeadDialog {
		t.Errorf("SaveDialogLatest on dead = %v, want ErrDeadDialog", err)
	}
	if err := s.SetDialogRunState(id, dialog.RunState{Kind: dialog.RunProceeding}); err != nil {
		t.Fatal(err)
	}
	latest, _ = s.LoadDialogLatest(id)
	if !latest.RunState.IsDead() {
		t.Errorf("run state = %s, want dead preserved", latest.RunState.Kind)
	}
}

func TestSubAssignmentPersistence(t *testing.T) {
	s := newStore(t)
	id := dialog.SubID("alice", "bob.plan")

	asg := &dialog.Assignment{TellaskHead: "@bob continue", TellaskBody: "resume", OriginMemberID: "alice", CallerDialogID: dialog.RootID("alice")}
	if err := s.UpdateSubdialogAssignment(id, asg); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LoadDialogLatest(id)
	if err != nil || latest == nil {
		t.Fatalf("latest = %v, %v", latest, err)
	}
	if latest.Assignment == nil || latest.Assignment.TellaskBody != "resume" {
		t.Errorf("assignment = %+v", latest.Assignment)
	}
	if latest.Assignment.CallerDialogID != dialog.RootID("alice") {
		t.Errorf("caller = %+v", latest.Assignment.CallerDialogID)
	}
}

func TestMessagesReplacePerCourse(t *testing.T) {
	s := newStore(t)
	id := dialog.RootID("alice")

	if err := s.SaveMessages(id, 1, []dialog.ChatMessage{{Type: dialog.MsgSaying, Content: "v1", GenSeq: 1}}); err != nil {
		t.Fatal(err)
	}
	// Saving a course again replaces its rows wholesale.
	if err := s.SaveMessages(id, 1, []dialog.ChatMessage{
		{Type: dialog.MsgPrompting, Content: "v2", GenSeq: 1},
		{Type: dialog.MsgSaying, Content: "v2 reply", GenSeq: 1},
	}); err != nil {
		t.Fatal(err)
	}
	msgs, err := s.LoadMessages(id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "v2" || msgs[1].Content != "v2 reply" {
		t.Errorf("course 1 = %+v", msgs)
	}
	if msgs, _ := s.LoadMessages(id, 2); len(msgs) != 0 {
		t.Errorf("absent course = %+v", msgs)
	}
}

func TestResponseQueueTakeCycle(t *testing.T) {
	s := newStore(t)
	id := dialog.RootID("alice")

	for _, rid := range []string{"r1", "r2"} {
		if err := s.AppendSubdialogResponse(id, dialog.SubdialogResponse{ResponseID: rid, ResponderID: "bob"}); err != nil {
			t.Fatal(err)
		}
	}
	// Duplicate ResponseID is dropped.
	if err := s.AppendSubdialogResponse(id, dialog.SubdialogResponse{ResponseID: "r1"}); err != nil {
		t.Fatal(err)
	}
	recs, err := s.LoadSubdialogResponses(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ResponseID != "r1" {
		t.Fatalf("queue = %+v", recs)
	}

	take, err := s.TakeSubdialogResponses(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(take.Responses) != 2 {
		t.Fatalf("taken = %+v", take.Responses)
	}
	if recs, _ := s.LoadSubdialogResponses(id); len(recs) != 0 {
		t.Errorf("queue after take = %+v", recs)
	}

	if err := s.RollbackTake(take); err != nil {
		t.Fatal(err)
	}
	if recs, _ := s.LoadSubdialogResponses(id); len(recs) != 2 {
		t.Errorf("queue after rollback = %+v", recs)
	}

	take, _ = s.TakeSubdialogResponses(id)
	if err := s.CommitTake(take); err != nil {
		t.Fatal(err)
	}
	take, _ = s.TakeSubdialogResponses(id)
	if len(take.Responses) != 0 {
		t.Errorf("take after commit = %+v", take.Responses)
	}
}

func TestNeedsDriveAndProblems(t *testing.T) {
	s := newStore(t)

	for _, agent := range []string{"bob", "alice"} {
		if err := s.SetNeedsDrive(dialog.RootID(agent), true, "teammate_response"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetNeedsDrive(dialog.RootID("bob"), false, ""); err != nil {
		t.Fatal(err)
	}
	ids, err := s.ListNeedsDrive()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0].Root != "alice" {
		t.Errorf("needs-drive = %v", ids)
	}

	p := store.Problem{Kind: "configuration_error", DialogKey: "alice/alice", Detail: "first"}
	if err := s.UpsertProblem(p); err != nil {
		t.Fatal(err)
	}
	p.Detail = "second"
	if err := s.UpsertProblem(p); err != nil {
		t.Fatal(err)
	}
	probs, err := s.ListProblems()
	if err != nil {
		t.Fatal(err)
	}
	if len(probs) != 1 || probs[0].Detail != "second" {
		t.Errorf("problems = %+v", probs)
	}
}

func TestQuestionsAndRegistered(t *testing.T) {
	s := newStore(t)
	id := dialog.RootID("alice")

	q := dialog.HumanQuestion{ID: "q1", TellaskHead: "@human", BodyContent: "go on?"}
	for i := 0; i < 2; i++ {
		if err := s.AppendQuestion4Human(id, q); err != nil {
			t.Fatal(err)
		}
	}
	qs, err := s.LoadQuestions4Human(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 || qs[0].BodyContent != "go on?" {
		t.Errorf("questions = %+v", qs)
	}
	if err := s.ResolveQuestion4Human(id, "q1"); err != nil {
		t.Fatal(err)
	}
	if qs, _ := s.LoadQuestions4Human(id); len(qs) != 0 {
		t.Errorf("after resolve = %+v", qs)
	}

	rec := dialog.RegisteredSubdialog{TargetAgentID: "bob", TellaskSession: "plan", SubdialogID: dialog.SubID("alice", "bob.plan")}
	if err := s.RegisterSubdialog(id, rec); err != nil {
		t.Fatal(err)
	}
	rec.SubdialogID = dialog.SubID("alice", "bob.plan2")
	if err := s.RegisterSubdialog(id, rec); err != nil {
		t.Fatal(err)
	}
	recs, err := s.ListRegisteredSubdialogs(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SubdialogID != rec.SubdialogID {
		t.Errorf("registered = %+v", recs)
	}
}
