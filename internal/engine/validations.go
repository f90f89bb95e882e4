package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mutaline/internal/domain"
	"mutaline/internal/events"
	"mutaline/internal/repo"
)

// ValidationOptions carries one approval-step decision.
type ValidationOptions struct {
	DemandeID    string
	Role         string
	ValidateurID string
	Decision     string
	Commentaire  string
	// DateMutation defers application of a final approval. Nil means
	// apply immediately once DNCF validates.
	DateMutation *string
	ActorID      string
}

// RecordValidation persists one immutable validation record and applies
// the resulting status transition. A VALIDE decision advances to the next
// gate; a REJETE decision also advances, except at the DNCF gate where it
// is terminal. Only DNCF can close a demande.
func (e Engine) RecordValidation(ctx context.Context, opts ValidationOptions) (domain.Validation, error) {
	if opts.Decision != domain.DecisionValide && opts.Decision != domain.DecisionRejete {
		return domain.Validation{}, fmt.Errorf("decision must be %s or %s", domain.DecisionValide, domain.DecisionRejete)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Validation{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDemandeTx(ctx, tx, opts.DemandeID)
	if err != nil {
		return domain.Validation{}, err
	}
	if domain.IsTerminal(d.Statut) || d.Statut == domain.StatutBrouillon {
		return domain.Validation{}, &RequestLockedError{ID: d.ID, Statut: d.Statut}
	}
	gate, ok := domain.GateForStatus(d.Statut)
	if !ok {
		return domain.Validation{}, fmt.Errorf("demande %s has no pending gate in status %s", d.ID, d.Statut)
	}
	if opts.Role != gate {
		return domain.Validation{}, fmt.Errorf("demande %s awaits a %s decision, got %s", d.ID, gate, opts.Role)
	}
	next, ok := domain.NextGateStatus(gate, opts.Decision)
	if !ok {
		return domain.Validation{}, fmt.Errorf("no transition from gate %s", gate)
	}
	v := domain.Validation{
		ID:           uuid.New().String(),
		DemandeID:    d.ID,
		Role:         opts.Role,
		ValidateurID: opts.ValidateurID,
		Decision:     opts.Decision,
		Commentaire:  opts.Commentaire,
		DecideeLe:    e.nowRFC(),
	}
	if err := e.Repo.InsertValidation(ctx, tx, v); err != nil {
		return domain.Validation{}, err
	}
	if err := e.Repo.TransitionDemande(ctx, tx, d.ID, d.Statut, next, e.nowRFC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// a concurrent decision won the race
			return domain.Validation{}, &RequestLockedError{ID: d.ID, Statut: d.Statut}
		}
		return domain.Validation{}, err
	}
	deferred := false
	if next == domain.StatutAcceptee && opts.DateMutation != nil {
		t, perr := time.Parse(time.RFC3339, *opts.DateMutation)
		if perr != nil {
			return domain.Validation{}, fmt.Errorf("invalid date_mutation %q: %w", *opts.DateMutation, perr)
		}
		// Stored in UTC; the sweep's due check compares RFC3339 strings,
		// which only sort chronologically at a single offset.
		effective := t.UTC().Format(time.RFC3339)
		if err := e.Repo.SetDemandeDateMutation(ctx, tx, d.ID, &effective, e.nowRFC()); err != nil {
			return domain.Validation{}, err
		}
		deferred = true
	}
	if err := e.Events.Append(ctx, tx, "demande.validation", events.KindDemande, d.ID, opts.ActorID, events.EventPayload{
		"role":     opts.Role,
		"decision": opts.Decision,
		"from":     d.Statut,
		"to":       next,
	}); err != nil {
		return domain.Validation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Validation{}, err
	}
	if domain.IsTerminal(next) {
		e.notifyDecision(ctx, d, next)
	}
	// An immediate-effect approval applies the mutation right away.
	// Failures are logged and left to the sweep; the validation stands.
	if next == domain.StatutAcceptee && !deferred && d.AgentID != nil && d.PosteSouhaiteID != nil {
		if err := e.ApplyDemande(ctx, d.ID, opts.ActorID); err != nil {
			e.logf("immediate apply of demande %s: %v", d.ID, err)
		}
	}
	return v, nil
}

// notifyDecision informs the requester of the final outcome. Best effort.
func (e Engine) notifyDecision(ctx context.Context, d domain.Demande, statut string) {
	titre := "Demande de mutation acceptée"
	decision := domain.DecisionValide
	if statut == domain.StatutRejetee {
		titre = "Demande de mutation rejetée"
		decision = domain.DecisionRejete
	}
	if d.Demandeur != nil && e.Mail != nil {
		if err := e.Mail.SendDecisionDocuments(ctx, d.Demandeur.Email, d.ID, decision); err != nil {
			e.logf("mail decision for demande %s: %v", d.ID, err)
		}
	}
	if e.Notify == nil || d.AgentID == nil {
		return
	}
	u, err := e.Repo.GetUserByAgent(ctx, *d.AgentID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			e.logf("notify decision for demande %s: %v", d.ID, err)
		}
		return
	}
	if err := e.Notify.Notify(ctx, u.ID, titre, fmt.Sprintf("Votre demande %s est %s", d.ID, statut), &d.ID); err != nil {
		e.logf("notify user %s: %v", u.ID, err)
	}
}
