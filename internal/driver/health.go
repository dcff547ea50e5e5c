package driver

import (
	"fmt"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
)

// Context-health defaults, applied when llm.yaml leaves a model's limits
// unset.
const (
	defaultOptimalTokens   = 100_000
	criticalHardFraction   = 0.9
	defaultCautionCadence  = 10
	criticalCountdownStart = 5
)

// healthState is the per-dialog remediation FSM.
type healthState struct {
	lastSeenLevel          dialog.HealthLevel
	lastCautionGuideGenSeq int
	criticalCountdown      int
}

func (hs *healthState) reset() {
	hs.lastSeenLevel = ""
	hs.lastCautionGuideGenSeq = 0
	hs.criticalCountdown = 0
}

// evalContextHealth classifies one generation's prompt-token usage against
// the model's limits.
func evalContextHealth(spec minds.ModelSpec, usage providers.Usage) *dialog.ContextHealth {
	hard := spec.HardLimitTokens()
	if hard <= 0 {
		return &dialog.ContextHealth{Available: false, Reason: "model context limits not configured"}
	}
	optimal := spec.OptimalMaxTokens
	if optimal <= 0 {
		optimal = defaultOptimalTokens
	}
	if optimal > hard {
		optimal = hard
	}
	critical := spec.CriticalMaxTokens
	if critical <= 0 {
		critical = int(float64(hard) * criticalHardFraction)
	}

	level := dialog.HealthHealthy
	switch {
	case usage.PromptTokens > critical:
		level = dialog.HealthCritical
	case usage.PromptTokens > optimal:
		level = dialog.HealthCaution
	}
	return &dialog.ContextHealth{
		Available:    true,
		PromptTokens: usage.PromptTokens,
		Level:        level,
		HardLimit:    hard,
		HardUtil:     float64(usage.PromptTokens) / float64(hard),
		OptimalLimit: optimal,
		OptimalUtil:  float64(usage.PromptTokens) / float64(optimal),
	}
}

// remediation is the outcome of one health check.
type remediation struct {
	// newCoursePrompt, when non-empty, means a forced new course was
	// started and the loop must continue with this prompt.
	newCoursePrompt string
	// guide, when non-empty, is injected into this iteration's context.
	guide string
	// guideAsPrompt records the guide as a visible prompting message
	// instead of an environment message.
	guideAsPrompt bool
}

const cautionGuide = "Your context is getting long. Wrap up loose ends, " +
	"write down durable conclusions, and prefer summarizing over quoting."

const newCoursePrompt = "Your previous course was archived because the context " +
	"reached its limit. Re-read your task and continue from your last durable conclusions."

func criticalGuide(remaining int) string {
	return fmt.Sprintf("Context is critical: a fresh course will be forced in %d generation(s). "+
		"Persist anything you still need, now.", remaining)
}

// remediateHealth applies the context-health FSM for one iteration, based
// on the health snapshot of the previous generation. promptEmitted reports
// whether this iteration already appended a user prompt.
func (rt *Runtime) remediateHealth(d *dialog.Dialog, spec minds.ModelSpec, promptEmitted bool) remediation {
	hs := rt.healthStateFor(d.ID.Key())
	h := d.LastContextHealth
	if h == nil || !h.Available || h.Level == dialog.HealthHealthy {
		hs.reset()
		return remediation{}
	}

	cadence := spec.CautionRemediationCadenceGenerations
	if cadence <= 0 {
		cadence = defaultCautionCadence
	}

	switch h.Level {
	case dialog.HealthCaution:
		hs.criticalCountdown = 0
		if hs.lastSeenLevel != dialog.HealthCaution {
			hs.lastCautionGuideGenSeq = 0
		}
		hs.lastSeenLevel = dialog.HealthCaution
		gen := d.ActiveGenSeq()
		if gen-hs.lastCautionGuideGenSeq >= cadence {
			hs.lastCautionGuideGenSeq = gen
			return remediation{guide: cautionGuide, guideAsPrompt: !promptEmitted}
		}
		return remediation{}

	case dialog.HealthCritical:
		if hs.lastSeenLevel != dialog.HealthCritical {
			hs.criticalCountdown = criticalCountdownStart
		}
		hs.lastSeenLevel = dialog.HealthCritical
		hs.criticalCountdown--
		if hs.criticalCountdown <= 0 {
			archived, course := d.StartNewCourse("")
			if len(archived) > 0 {
				if err := rt.store.SaveMessages(d.ID, course-1, archived); err != nil {
					// The archive is already superseded; log-and-go.
					rt.noticeDominds(d, "archiving the previous course failed: "+err.Error())
				}
			}
			hs.reset()
			return remediation{newCoursePrompt: newCoursePrompt}
		}
		return remediation{guide: criticalGuide(hs.criticalCountdown), guideAsPrompt: !promptEmitted}
	}
	return remediation{}
}
