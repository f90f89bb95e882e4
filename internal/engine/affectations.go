package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"mutaline/internal/domain"
	"mutaline/internal/events"
	"mutaline/internal/repo"
)

// End reasons stamped on closed assignment rows.
const (
	MotifMutation   = "Mutation"
	MotifLiberation = "Libération du poste"
)

// AssignAgentToPoste moves an agent into a poste in one transaction:
// the previous occupant's open row is closed, the agent's open row on any
// other poste is closed, a new open row is appended and the poste's
// occupant pointer is updated. Re-assigning an agent to the poste they
// already hold is a no-op on the history.
//
// This is the only write path for poste occupancy and assignment rows.
func (e Engine) AssignAgentToPoste(ctx context.Context, posteID, agentID, actorID string) (domain.Poste, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Poste{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPosteTx(ctx, tx, posteID)
	if err != nil {
		return domain.Poste{}, err
	}
	if _, err := e.Repo.GetAgentTx(ctx, tx, agentID); err != nil {
		return domain.Poste{}, err
	}
	now := e.nowRFC()

	// Close the previous occupant's open row for this poste.
	prev, err := e.Repo.OpenAffectationForPoste(ctx, tx, posteID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Poste{}, err
	}
	if err == nil && prev.AgentID != agentID {
		if err := e.Repo.CloseAffectation(ctx, tx, prev.ID, now, MotifMutation); err != nil {
			return domain.Poste{}, err
		}
	}

	current, err := e.Repo.OpenAffectationForAgent(ctx, tx, agentID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		if err := e.Repo.InsertAffectation(ctx, tx, domain.Affectation{
			ID:        uuid.New().String(),
			AgentID:   agentID,
			PosteID:   posteID,
			DateDebut: now,
		}); err != nil {
			return domain.Poste{}, err
		}
	case err != nil:
		return domain.Poste{}, err
	case current.PosteID == posteID:
		// idempotent re-assignment
	default:
		// The departed poste keeps its stale occupant pointer until it is
		// explicitly released or reassigned; only its history row closes.
		if err := e.Repo.CloseAffectation(ctx, tx, current.ID, now, MotifMutation); err != nil {
			return domain.Poste{}, err
		}
		if err := e.Repo.InsertAffectation(ctx, tx, domain.Affectation{
			ID:        uuid.New().String(),
			AgentID:   agentID,
			PosteID:   posteID,
			DateDebut: now,
		}); err != nil {
			return domain.Poste{}, err
		}
	}

	if err := e.Repo.SetPosteOccupant(ctx, tx, posteID, &agentID, domain.PosteOccupe, now); err != nil {
		return domain.Poste{}, err
	}
	if err := e.Events.Append(ctx, tx, "poste.affecte", events.KindAffectation, posteID, actorID, events.EventPayload{
		"agent_id": agentID,
	}); err != nil {
		return domain.Poste{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Poste{}, err
	}
	p.OccupantID = &agentID
	p.Statut = domain.PosteOccupe
	p.UpdatedAt = now
	return p, nil
}

// ReleasePoste closes the occupant's open assignment row and frees the
// poste.
func (e Engine) ReleasePoste(ctx context.Context, posteID, actorID string) (domain.Poste, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Poste{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPosteTx(ctx, tx, posteID)
	if err != nil {
		return domain.Poste{}, err
	}
	now := e.nowRFC()
	open, err := e.Repo.OpenAffectationForPoste(ctx, tx, posteID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Poste{}, err
	}
	if err == nil {
		if err := e.Repo.CloseAffectation(ctx, tx, open.ID, now, MotifLiberation); err != nil {
			return domain.Poste{}, err
		}
	}
	if err := e.Repo.SetPosteOccupant(ctx, tx, posteID, nil, domain.PosteLibre, now); err != nil {
		return domain.Poste{}, err
	}
	if err := e.Events.Append(ctx, tx, "poste.libere", events.KindAffectation, posteID, actorID, nil); err != nil {
		return domain.Poste{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Poste{}, err
	}
	p.OccupantID = nil
	p.Statut = domain.PosteLibre
	p.UpdatedAt = now
	return p, nil
}
