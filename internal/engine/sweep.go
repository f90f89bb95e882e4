package engine

import (
	"context"

	"mutaline/internal/domain"
)

// SweepResult reports one sweep run.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Applied    int `json:"applied"`
	Failed     int `json:"failed"`
}

// SweepActor is the actor recorded on sweep-driven mutations.
const SweepActor = "sweep"

// RunSweep applies every accepted demande whose effective date has been
// reached. Each demande is processed independently; failures are counted
// and logged, never raised. The loop checks for cancellation between
// iterations, not mid-application.
func (e Engine) RunSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	candidates, err := e.Repo.SweepCandidates(ctx, e.nowRFC())
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)
	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.ApplyDemande(ctx, d.ID, SweepActor); err != nil {
			res.Failed++
			e.logf("sweep: apply demande %s: %v", d.ID, err)
			continue
		}
		res.Applied++
	}
	return res, nil
}

// ApplyDemande materializes one accepted demande as an actual assignment.
// Used by the sweep, by the immediate-apply path after a final approval,
// and by administrative override. Applying a demande whose agent already
// holds the poste is a no-op, which makes sweep/immediate-apply races
// safe.
func (e Engine) ApplyDemande(ctx context.Context, id, actorID string) error {
	d, err := e.Repo.GetDemande(ctx, id)
	if err != nil {
		return err
	}
	if d.Statut != domain.StatutAcceptee {
		return &RequestLockedError{ID: d.ID, Statut: d.Statut}
	}
	if d.AgentID == nil {
		return &IneligibleError{ID: d.ID, Reason: ReasonAgentMissing}
	}
	if d.PosteSouhaiteID == nil {
		return &IneligibleError{ID: d.ID, Reason: ReasonPosteUnavailable}
	}
	_, err = e.AssignAgentToPoste(ctx, *d.PosteSouhaiteID, *d.AgentID, actorID)
	return err
}

// SweepEnabled reports whether the periodic sweep should run.
func (e Engine) SweepEnabled() bool {
	return e.Config == nil || e.Config.Sweep.Enabled
}
