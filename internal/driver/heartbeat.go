package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dominds/minddrive/internal/config"
)

// RunHeartbeats evaluates the configured cron heartbeats once a minute and
// drives the matching root dialogs with their heartbeat prompt. Invalid
// expressions are dropped at startup.
func (rt *Runtime) RunHeartbeats(ctx context.Context, beats []config.HeartbeatConfig) error {
	gron := gronx.New()
	var valid []config.HeartbeatConfig
	for _, hb := range beats {
		if hb.Agent == "" || !gron.IsValid(hb.Cron) {
			slog.Warn("heartbeat dropped", "agent", hb.Agent, "cron", hb.Cron)
			continue
		}
		valid = append(valid, hb)
	}
	if len(valid) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	slog.Info("heartbeats scheduled", "count", len(valid))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, hb := range valid {
				due, err := gron.IsDue(hb.Cron, now)
				if err != nil || !due {
					continue
				}
				rt.fireHeartbeat(ctx, hb)
			}
		}
	}
}

func (rt *Runtime) fireHeartbeat(ctx context.Context, hb config.HeartbeatConfig) {
	d, err := rt.EnsureRoot(hb.Agent)
	if err != nil {
		slog.Error("heartbeat root unavailable", "agent", hb.Agent, "error", err)
		return
	}
	prompt := hb.Prompt
	if prompt == "" {
		prompt = "Heartbeat: check your task for anything due and act on it."
	}
	go func() {
		if err := rt.DriveDialog(ctx, d.ID, &HumanPrompt{Content: prompt, internal: true}); err != nil {
			slog.Warn("heartbeat drive failed", "agent", hb.Agent, "error", err)
		}
	}()
}
