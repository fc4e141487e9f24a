package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Outcome is the result of applying the completion rule to a decision set.
type Outcome struct {
	IsComplete bool
	CanProceed bool
	// Status is the status the workflow should move to; Pending while incomplete.
	Status   Status
	Approved []string
	Rejected []string
	Pending  []string
}

// Evaluate applies the completion rule. Only decisions from required approvers
// count, and each approver counts once (their latest decision).
//
//   - any reject completes the workflow as rejected;
//   - requireAll: approved once every required approver approved;
//   - otherwise: approved once at least one approval exists and nobody is pending.
func Evaluate(w *Workflow, decisions []Decision) Outcome {
	latest := latestByApprover(w, decisions)

	var out Outcome
	for _, approver := range w.RequiredApprovers {
		d, ok := latest[approver]
		switch {
		case !ok:
			out.Pending = append(out.Pending, approver)
		case d.Verdict == VerdictReject:
			out.Rejected = append(out.Rejected, approver)
		default:
			out.Approved = append(out.Approved, approver)
		}
	}
	sortByDecisionTime(out.Approved, latest)
	sortByDecisionTime(out.Rejected, latest)

	out.Status = StatusPending
	if len(out.Rejected) > 0 {
		out.IsComplete = true
		out.Status = StatusRejected
		return out
	}

	var satisfied bool
	if w.RequireAllApprovers {
		satisfied = len(out.Approved) == len(w.RequiredApprovers)
	} else {
		satisfied = len(out.Approved) > 0 && len(out.Pending) == 0
	}
	if satisfied {
		out.IsComplete = true
		out.CanProceed = true
		out.Status = StatusApproved
	}
	return out
}

// CountedDecisions returns the decisions that take part in completion
// arithmetic, one per required approver, ordered by decision time.
func CountedDecisions(w *Workflow, decisions []Decision) []Decision {
	latest := latestByApprover(w, decisions)
	out := make([]Decision, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Decision) int {
		if c := a.DecidedAt.Compare(b.DecidedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ApproverID, b.ApproverID)
	})
	return out
}

// Snapshot builds the caller-facing view of w at now.
func Snapshot(w *Workflow, decisions []Decision, now time.Time) *StatusSnapshot {
	view := w.Clone()
	view.Status = w.EffectiveStatus(now)
	counted := CountedDecisions(w, decisions)
	outcome := Evaluate(w, counted)

	snap := &StatusSnapshot{
		Workflow:         view,
		PendingApprovers: nonNil(outcome.Pending),
		Decisions:        counted,
	}
	switch view.Status {
	case StatusPending:
		snap.NextActions = pendingActions(w, outcome)
	case StatusApproved:
		snap.IsComplete = true
		snap.CanProceed = true
		snap.NextActions = []string{"All required approvals received; the operation may proceed."}
	case StatusRejected:
		snap.IsComplete = true
		snap.NextActions = []string{fmt.Sprintf("Rejected by %s; the operation must not proceed.", strings.Join(outcome.Rejected, ", "))}
	case StatusExpired:
		snap.IsComplete = true
		snap.NextActions = []string{"The approval window has closed; submit a new approval request."}
	case StatusCancelled:
		snap.IsComplete = true
		snap.NextActions = []string{"The request was cancelled; no further decisions are accepted."}
	}
	return snap
}

func pendingActions(w *Workflow, outcome Outcome) []string {
	actions := make([]string, 0, len(outcome.Pending)+1)
	for _, approver := range outcome.Pending {
		actions = append(actions, fmt.Sprintf("Awaiting decision from %s.", approver))
	}
	if w.RequireAllApprovers {
		actions = append(actions, fmt.Sprintf("%d of %d approvals received; every approver must approve.",
			len(outcome.Approved), len(w.RequiredApprovers)))
	}
	return actions
}

func latestByApprover(w *Workflow, decisions []Decision) map[string]Decision {
	latest := make(map[string]Decision, len(decisions))
	for _, d := range decisions {
		if !w.IsRequiredApprover(d.ApproverID) {
			continue
		}
		if prev, ok := latest[d.ApproverID]; ok && prev.DecidedAt.After(d.DecidedAt) {
			continue
		}
		latest[d.ApproverID] = d
	}
	return latest
}

func sortByDecisionTime(approvers []string, latest map[string]Decision) {
	slices.SortStableFunc(approvers, func(a, b string) int {
		return latest[a].DecidedAt.Compare(latest[b].DecidedAt)
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
