package driver

import (
	"context"
	"testing"

	"github.com/dominds/minddrive/internal/dialog"
)

func TestAbortTokenFirstWriterWins(t *testing.T) {
	tok := newAbortToken(context.Background())
	if _, _, stopped := tok.StopState(); stopped {
		t.Fatal("fresh token reports stopped")
	}
	if !tok.Stop(dialog.StopUser, "user asked") {
		t.Fatal("first Stop was not the writer")
	}
	if tok.Stop(dialog.StopEmergency, "too late") {
		t.Fatal("second Stop claimed to be the writer")
	}
	reason, detail, stopped := tok.StopState()
	if !stopped || reason != dialog.StopUser || detail != "user asked" {
		t.Errorf("StopState = %v %q %v, want user_stop", reason, detail, stopped)
	}
	select {
	case <-tok.ctx.Done():
	default:
		t.Error("token context not cancelled after Stop")
	}
}

func TestAbortRegistry(t *testing.T) {
	reg := newAbortRegistry()
	if reg.stop("alice/alice", dialog.StopUser, "x") {
		t.Error("stop on an empty registry reported success")
	}
	tok := newAbortToken(context.Background())
	reg.register("alice/alice", tok)
	if !reg.stop("alice/alice", dialog.StopUser, "x") {
		t.Error("stop on a registered drive failed")
	}
	if _, _, stopped := tok.StopState(); !stopped {
		t.Error("registered token not stopped")
	}

	// Unregister only removes the matching token.
	other := newAbortToken(context.Background())
	reg.register("bob/bob", other)
	stale := newAbortToken(context.Background())
	reg.unregister("bob/bob", stale)
	if !reg.stop("bob/bob", dialog.StopSystem, "y") {
		t.Error("unregister of a stale token removed the live one")
	}
	reg.unregister("bob/bob", other)
	if reg.stop("bob/bob", dialog.StopSystem, "z") {
		t.Error("stop after unregister reported success")
	}
}
