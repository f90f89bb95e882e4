package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mutaline/internal/domain"
	"mutaline/internal/events"
	"mutaline/internal/repo"
)

// DemandeCreateOptions are parameters for creating a mutation request.
type DemandeCreateOptions struct {
	Type                string
	AgentID             string
	Motif               string
	PosteSouhaiteID     string
	LocalitesSouhaitees []string
	Demandeur           *domain.Demandeur
	// CreatorRoles are the roles of the authenticated creator. The
	// primary role decides the chain entry point when the creation
	// itself enters the chain.
	CreatorRoles []string
	ActorID      string
}

// CreateDemande creates a mutation request. Requests from ordinary agents
// stay in BROUILLON until submitted; a gate-role creator enters the chain
// immediately at their own gate. STRATEGIQUE requests must go through
// CreateStrategique.
func (e Engine) CreateDemande(ctx context.Context, opts DemandeCreateOptions) (domain.Demande, error) {
	if opts.Type == "" {
		opts.Type = domain.TypeSimple
	}
	if opts.Type == domain.TypeStrategique {
		return domain.Demande{}, &InvalidTypeError{Type: opts.Type}
	}
	if opts.Type != domain.TypeSimple {
		return domain.Demande{}, fmt.Errorf("unknown demande type %s", opts.Type)
	}
	if opts.Motif == "" {
		return domain.Demande{}, errors.New("motif is required")
	}
	if opts.AgentID == "" && opts.Demandeur == nil {
		return domain.Demande{}, errors.New("agent or demandeur details required")
	}
	if opts.AgentID != "" {
		if _, err := e.Repo.GetAgent(ctx, opts.AgentID); err != nil {
			return domain.Demande{}, err
		}
	}
	now := e.nowRFC()
	d := domain.Demande{
		ID:                  uuid.New().String(),
		Type:                opts.Type,
		AgentID:             optionalString(opts.AgentID),
		Motif:               opts.Motif,
		PosteSouhaiteID:     optionalString(opts.PosteSouhaiteID),
		LocalitesSouhaitees: opts.LocalitesSouhaitees,
		Statut:              domain.StatutBrouillon,
		Demandeur:           opts.Demandeur,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	role := domain.PrimaryRole(opts.CreatorRoles)
	entry := domain.EntryStatus(role)
	skipAhead := entry != domain.StatutValidationHie
	if skipAhead {
		if err := e.checkEligibilite(ctx, d); err != nil {
			return domain.Demande{}, err
		}
		d.Statut = entry
		d.DateSoumission = &now
	}
	if err := e.Repo.InsertDemande(ctx, d); err != nil {
		return domain.Demande{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demande{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "demande.created", events.KindDemande, d.ID, opts.ActorID, events.EventPayload{
		"type":   d.Type,
		"statut": d.Statut,
	}); err != nil {
		return domain.Demande{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demande{}, err
	}
	if d.Demandeur != nil {
		if err := e.Mail.SendConfirmation(ctx, d.Demandeur.Email, d.ID); err != nil {
			e.logf("mail confirmation for demande %s: %v", d.ID, err)
		}
	}
	return d, nil
}

// CreatePublicDemande creates a SIMPLE request from an unauthenticated
// public submission carrying inline applicant details. The requester has
// no way to call Soumettre afterwards, so the request enters the chain
// at EN_VALIDATION_HIERARCHIQUE immediately, eligibility checked.
func (e Engine) CreatePublicDemande(ctx context.Context, opts DemandeCreateOptions) (domain.Demande, error) {
	if opts.Demandeur == nil {
		return domain.Demande{}, errors.New("demandeur details required")
	}
	if opts.Demandeur.Nom == "" || opts.Demandeur.Prenom == "" || opts.Demandeur.Email == "" {
		return domain.Demande{}, errors.New("demandeur nom, prenom and email required")
	}
	if opts.Motif == "" {
		return domain.Demande{}, errors.New("motif is required")
	}
	now := e.nowRFC()
	d := domain.Demande{
		ID:                  uuid.New().String(),
		Type:                domain.TypeSimple,
		Motif:               opts.Motif,
		PosteSouhaiteID:     optionalString(opts.PosteSouhaiteID),
		LocalitesSouhaitees: opts.LocalitesSouhaitees,
		Statut:              domain.StatutValidationHie,
		DateSoumission:      &now,
		Demandeur:           opts.Demandeur,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.checkEligibilite(ctx, d); err != nil {
		return domain.Demande{}, err
	}
	if err := e.Repo.InsertDemande(ctx, d); err != nil {
		return domain.Demande{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demande{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "demande.created", events.KindDemande, d.ID, "public", events.EventPayload{
		"type":   d.Type,
		"statut": d.Statut,
	}); err != nil {
		return domain.Demande{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demande{}, err
	}
	if err := e.Mail.SendConfirmation(ctx, d.Demandeur.Email, d.ID); err != nil {
		e.logf("mail confirmation for demande %s: %v", d.ID, err)
	}
	return d, nil
}

// CreateStrategique creates a STRATEGIQUE request through the privileged
// path. It enters the chain directly at the DNCF gate.
func (e Engine) CreateStrategique(ctx context.Context, opts DemandeCreateOptions) (domain.Demande, error) {
	if !domain.HasRole(opts.CreatorRoles, domain.RoleDNCF) && !domain.HasRole(opts.CreatorRoles, domain.RoleAdmin) {
		return domain.Demande{}, &InvalidTypeError{Type: domain.TypeStrategique}
	}
	if opts.Motif == "" {
		return domain.Demande{}, errors.New("motif is required")
	}
	if opts.AgentID != "" {
		if _, err := e.Repo.GetAgent(ctx, opts.AgentID); err != nil {
			return domain.Demande{}, err
		}
	}
	now := e.nowRFC()
	d := domain.Demande{
		ID:                  uuid.New().String(),
		Type:                domain.TypeStrategique,
		AgentID:             optionalString(opts.AgentID),
		Motif:               opts.Motif,
		PosteSouhaiteID:     optionalString(opts.PosteSouhaiteID),
		LocalitesSouhaitees: opts.LocalitesSouhaitees,
		Statut:              domain.StatutEtudeDNCF,
		DateSoumission:      &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.Repo.InsertDemande(ctx, d); err != nil {
		return domain.Demande{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demande{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "demande.created", events.KindDemande, d.ID, opts.ActorID, events.EventPayload{
		"type":   d.Type,
		"statut": d.Statut,
	}); err != nil {
		return domain.Demande{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demande{}, err
	}
	return d, nil
}

// DemandeUpdateOptions carries the editable fields of a draft.
type DemandeUpdateOptions struct {
	ID                  string
	Motif               *string
	PosteSouhaiteID     *string
	LocalitesSouhaitees []string
	ActorID             string
}

// UpdateDemande edits a draft. Any status beyond BROUILLON fails with
// RequestLocked.
func (e Engine) UpdateDemande(ctx context.Context, opts DemandeUpdateOptions) (domain.Demande, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demande{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDemandeTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Demande{}, err
	}
	if d.Statut != domain.StatutBrouillon {
		return domain.Demande{}, &RequestLockedError{ID: d.ID, Statut: d.Statut}
	}
	if opts.Motif != nil {
		d.Motif = *opts.Motif
	}
	if opts.PosteSouhaiteID != nil {
		d.PosteSouhaiteID = optionalString(*opts.PosteSouhaiteID)
	}
	if opts.LocalitesSouhaitees != nil {
		d.LocalitesSouhaitees = opts.LocalitesSouhaitees
	}
	d.UpdatedAt = e.nowRFC()
	if err := e.Repo.UpdateDemandeDraft(ctx, tx, d); err != nil {
		return domain.Demande{}, err
	}
	if err := e.Events.Append(ctx, tx, "demande.updated", events.KindDemande, d.ID, opts.ActorID, nil); err != nil {
		return domain.Demande{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demande{}, err
	}
	return d, nil
}

// checkEligibilite runs the submission preconditions. Violations surface
// as IneligibleError naming the failed check.
func (e Engine) checkEligibilite(ctx context.Context, d domain.Demande) error {
	var agent *domain.Agent
	if d.AgentID != nil {
		a, err := e.Repo.GetAgent(ctx, *d.AgentID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &IneligibleError{ID: d.ID, Reason: ReasonAgentMissing}
			}
			return err
		}
		agent = &a
	}
	if agent != nil && e.Config != nil && e.Config.Regles.AncienneteMinimale > 0 {
		years, err := Anciennete(agent.DateEmbauche, e.now())
		if err != nil {
			return err
		}
		if years < e.Config.Regles.AncienneteMinimale {
			return &IneligibleError{ID: d.ID, Reason: ReasonAnciennete}
		}
	}
	if d.PosteSouhaiteID == nil {
		return nil
	}
	p, err := e.Repo.GetPoste(ctx, *d.PosteSouhaiteID)
	if err != nil {
		return err
	}
	if e.Config == nil || e.Config.Regles.ExigerPosteLibre {
		if p.Statut != domain.PosteLibre {
			return &IneligibleError{ID: d.ID, Reason: ReasonPosteUnavailable}
		}
	}
	if e.Config == nil || e.Config.Regles.ExigerGradeCorrespondant {
		if agent != nil && agent.GradeID != nil && p.GradeRequis != nil && *agent.GradeID != *p.GradeRequis {
			return &IneligibleError{ID: d.ID, Reason: ReasonGradeMismatch}
		}
	}
	return nil
}

// Soumettre submits a draft into the approval chain at the entry point of
// the submitter's role. Anything past BROUILLON, including a request
// advanced by the creation-time skip-ahead, fails with RequestLocked.
func (e Engine) Soumettre(ctx context.Context, id string, submitterRoles []string, actorID string) (domain.Demande, error) {
	d, err := e.Repo.GetDemande(ctx, id)
	if err != nil {
		return domain.Demande{}, err
	}
	if d.Statut != domain.StatutBrouillon {
		return domain.Demande{}, &RequestLockedError{ID: d.ID, Statut: d.Statut}
	}
	if err := e.checkEligibilite(ctx, d); err != nil {
		return domain.Demande{}, err
	}
	entry := domain.EntryStatus(domain.PrimaryRole(submitterRoles))
	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demande{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetDemandeSoumission(ctx, tx, d.ID, entry, now, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Demande{}, &RequestLockedError{ID: d.ID, Statut: d.Statut}
		}
		return domain.Demande{}, err
	}
	if err := e.Events.Append(ctx, tx, "demande.soumise", events.KindDemande, d.ID, actorID, events.EventPayload{
		"statut": entry,
	}); err != nil {
		return domain.Demande{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demande{}, err
	}
	d.Statut = entry
	d.DateSoumission = &now
	d.UpdatedAt = now
	if entry == domain.StatutValidationHie {
		e.notifyResponsables(ctx, d)
	}
	return d, nil
}

// notifyResponsables fans out one notification per hierarchical
// responsible of the requester's service. Best effort.
func (e Engine) notifyResponsables(ctx context.Context, d domain.Demande) {
	if e.Notify == nil || d.AgentID == nil {
		return
	}
	agent, err := e.Repo.GetAgent(ctx, *d.AgentID)
	if err != nil {
		e.logf("notify responsables for demande %s: %v", d.ID, err)
		return
	}
	if agent.ServiceID == nil {
		return
	}
	responsables, err := e.Repo.ResponsablesForService(ctx, *agent.ServiceID)
	if err != nil {
		e.logf("notify responsables for demande %s: %v", d.ID, err)
		return
	}
	for _, r := range responsables {
		msg := fmt.Sprintf("Nouvelle demande de mutation de %s %s", agent.Prenom, agent.Nom)
		if err := e.Notify.Notify(ctx, r.ID, "Demande de mutation à valider", msg, &d.ID); err != nil {
			e.logf("notify user %s: %v", r.ID, err)
		}
	}
}

// GetDemande returns a demande with its validation history attached.
func (e Engine) GetDemande(ctx context.Context, id string) (domain.Demande, error) {
	d, err := e.Repo.GetDemande(ctx, id)
	if err != nil {
		return domain.Demande{}, err
	}
	d.Validations, err = e.Repo.ListValidationsByDemande(ctx, id)
	if err != nil {
		return domain.Demande{}, err
	}
	return d, nil
}
