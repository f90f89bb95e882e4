package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"mutaline/internal/config"
	"mutaline/internal/db"
	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/migrate"
)

type testEnv struct {
	eng  engine.Engine
	conn *sql.DB
	now  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		conn: conn,
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.eng = engine.New(conn, config.Default())
	env.eng.Now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) seedAgent(t *testing.T, matricule, grade string) domain.Agent {
	t.Helper()
	a, err := env.eng.CreateAgent(context.Background(), engine.AgentCreateOptions{
		Matricule:    matricule,
		Nom:          "Ndiaye",
		Prenom:       "Fatou",
		DateEmbauche: env.now.AddDate(-10, 0, 0).Format(time.RFC3339),
		GradeID:      grade,
		ServiceID:    "SVC-NORD",
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}

func (env *testEnv) seedPoste(t *testing.T, grade string) domain.Poste {
	t.Helper()
	p, err := env.eng.CreatePoste(context.Background(), engine.PosteCreateOptions{
		Intitule:    "Chef de bureau",
		GradeRequis: grade,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create poste: %v", err)
	}
	return p
}

func (env *testEnv) submittedDemande(t *testing.T, agentID, posteID string) domain.Demande {
	t.Helper()
	ctx := context.Background()
	d, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID:         agentID,
		Motif:           "Rapprochement familial",
		PosteSouhaiteID: posteID,
		ActorID:         agentID,
	})
	if err != nil {
		t.Fatalf("create demande: %v", err)
	}
	d, err = env.eng.Soumettre(ctx, d.ID, nil, agentID)
	if err != nil {
		t.Fatalf("soumettre: %v", err)
	}
	return d
}

func (env *testEnv) validate(t *testing.T, demandeID, decision string, dateMutation *string) domain.Validation {
	t.Helper()
	ctx := context.Background()
	d, err := env.eng.Repo.GetDemande(ctx, demandeID)
	if err != nil {
		t.Fatalf("get demande: %v", err)
	}
	gate, ok := domain.GateForStatus(d.Statut)
	if !ok {
		t.Fatalf("no gate owns status %s", d.Statut)
	}
	v, err := env.eng.RecordValidation(ctx, engine.ValidationOptions{
		DemandeID:    demandeID,
		Role:         gate,
		ValidateurID: "validator-" + gate,
		Decision:     decision,
		DateMutation: dateMutation,
		ActorID:      "validator-" + gate,
	})
	if err != nil {
		t.Fatalf("validation at %s: %v", gate, err)
	}
	return v
}

func TestAnciennete(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	years, err := engine.Anciennete("2015-06-01T00:00:00Z", now)
	if err != nil {
		t.Fatalf("anciennete: %v", err)
	}
	if years != 10 {
		t.Fatalf("expected 10 years, got %d", years)
	}
	// The day before the anniversary still counts the previous year.
	years, _ = engine.Anciennete("2015-06-02T00:00:00Z", now)
	if years != 9 {
		t.Fatalf("expected 9 years before anniversary, got %d", years)
	}
	if _, err := engine.Anciennete("not-a-date", now); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestSubmissionEligibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.eng.Config.Regles.AncienneteMinimale = 15

	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID:         agent.ID,
		Motif:           "Rapprochement familial",
		PosteSouhaiteID: poste.ID,
		ActorID:         agent.ID,
	})
	if err != nil {
		t.Fatalf("create demande: %v", err)
	}
	_, err = env.eng.Soumettre(ctx, d.ID, nil, agent.ID)
	var inel *engine.IneligibleError
	if !errors.As(err, &inel) {
		t.Fatalf("expected IneligibleError, got %v", err)
	}
	if inel.Reason != engine.ReasonAnciennete {
		t.Fatalf("expected reason %s, got %s", engine.ReasonAnciennete, inel.Reason)
	}
}

func TestGradeMismatchBlocksSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAgent(t, "MAT-001", "B2")
	poste := env.seedPoste(t, "A1")
	d, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID:         agent.ID,
		Motif:           "Avancement",
		PosteSouhaiteID: poste.ID,
		ActorID:         agent.ID,
	})
	if err != nil {
		t.Fatalf("create demande: %v", err)
	}
	_, err = env.eng.Soumettre(ctx, d.ID, nil, agent.ID)
	var inel *engine.IneligibleError
	if !errors.As(err, &inel) || inel.Reason != engine.ReasonGradeMismatch {
		t.Fatalf("expected grade mismatch, got %v", err)
	}
}

func TestRejectionAtDNCFIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d := env.submittedDemande(t, agent.ID, poste.ID)

	env.validate(t, d.ID, domain.DecisionRejete, nil)
	env.validate(t, d.ID, domain.DecisionRejete, nil)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionRejete, nil)

	got, err := env.eng.GetDemande(ctx, d.ID)
	if err != nil {
		t.Fatalf("get demande: %v", err)
	}
	if got.Statut != domain.StatutRejetee {
		t.Fatalf("expected %s, got %s", domain.StatutRejetee, got.Statut)
	}
	if len(got.Validations) != 4 {
		t.Fatalf("expected 4 validation records, got %d", len(got.Validations))
	}
	// Terminal: no further decision accepted.
	_, err = env.eng.RecordValidation(ctx, engine.ValidationOptions{
		DemandeID:    d.ID,
		Role:         domain.RoleDNCF,
		ValidateurID: "validator",
		Decision:     domain.DecisionValide,
		ActorID:      "validator",
	})
	var locked *engine.RequestLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected RequestLockedError on terminal demande, got %v", err)
	}
}

func TestImmediateApplyOnFinalApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d := env.submittedDemande(t, agent.ID, poste.ID)

	for range domain.GateChain {
		env.validate(t, d.ID, domain.DecisionValide, nil)
	}

	p, err := env.eng.Repo.GetPoste(ctx, poste.ID)
	if err != nil {
		t.Fatalf("get poste: %v", err)
	}
	if p.Statut != domain.PosteOccupe || p.OccupantID == nil || *p.OccupantID != agent.ID {
		t.Fatalf("expected poste occupied by %s, got %s occupant %v", agent.ID, p.Statut, p.OccupantID)
	}
}

func TestDeferredMutationAppliedBySweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d := env.submittedDemande(t, agent.ID, poste.ID)

	effective := env.now.AddDate(0, 1, 0).Format(time.RFC3339)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, &effective)

	got, _ := env.eng.GetDemande(ctx, d.ID)
	if got.Statut != domain.StatutAcceptee {
		t.Fatalf("expected %s, got %s", domain.StatutAcceptee, got.Statut)
	}
	p, _ := env.eng.Repo.GetPoste(ctx, poste.ID)
	if p.Statut != domain.PosteLibre {
		t.Fatalf("deferred mutation must not occupy the poste yet, got %s", p.Statut)
	}

	// Before the effective date the sweep finds nothing.
	res, err := env.eng.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Candidates != 0 {
		t.Fatalf("expected no candidates before the effective date, got %d", res.Candidates)
	}

	env.now = env.now.AddDate(0, 1, 1)
	res, err = env.eng.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Candidates != 1 || res.Applied != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 applied, got %+v", res)
	}
	p, _ = env.eng.Repo.GetPoste(ctx, poste.ID)
	if p.Statut != domain.PosteOccupe || p.OccupantID == nil || *p.OccupantID != agent.ID {
		t.Fatalf("sweep should occupy the poste, got %s occupant %v", p.Statut, p.OccupantID)
	}

	// Re-application must not duplicate history.
	if err := env.eng.ApplyDemande(ctx, d.ID, "tester"); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	history, _ := env.eng.Repo.ListAffectations(ctx, agent.ID)
	open := 0
	for _, af := range history {
		if af.DateFin == nil {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("expected one open affectation, got %d", open)
	}
}

func TestReassignmentClosesPreviousRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	posteA := env.seedPoste(t, "A1")
	posteB := env.seedPoste(t, "A1")

	if _, err := env.eng.AssignAgentToPoste(ctx, posteA.ID, agent.ID, "tester"); err != nil {
		t.Fatalf("assign A: %v", err)
	}
	if _, err := env.eng.AssignAgentToPoste(ctx, posteB.ID, agent.ID, "tester"); err != nil {
		t.Fatalf("assign B: %v", err)
	}

	history, err := env.eng.Repo.ListAffectations(ctx, agent.ID)
	if err != nil {
		t.Fatalf("list affectations: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
	var closed, open int
	for _, af := range history {
		if af.DateFin == nil {
			open++
			if af.PosteID != posteB.ID {
				t.Fatalf("open row should be on posteB, got %s", af.PosteID)
			}
			continue
		}
		closed++
		if af.MotifFin == nil || *af.MotifFin != engine.MotifMutation {
			t.Fatalf("closed row should carry motif %q, got %v", engine.MotifMutation, af.MotifFin)
		}
	}
	if open != 1 || closed != 1 {
		t.Fatalf("expected 1 open and 1 closed row, got %d/%d", open, closed)
	}

	// The departed poste keeps its stale occupant pointer; only an
	// explicit release clears it.
	pa, _ := env.eng.Repo.GetPoste(ctx, posteA.ID)
	if pa.Statut != domain.PosteOccupe || pa.OccupantID == nil || *pa.OccupantID != agent.ID {
		t.Fatalf("posteA should stay stale after the move, got %s occupant %v", pa.Statut, pa.OccupantID)
	}
	if _, err := env.eng.ReleasePoste(ctx, posteA.ID, "tester"); err != nil {
		t.Fatalf("release posteA: %v", err)
	}
	pa, _ = env.eng.Repo.GetPoste(ctx, posteA.ID)
	if pa.Statut != domain.PosteLibre || pa.OccupantID != nil {
		t.Fatalf("posteA should be free once released, got %s occupant %v", pa.Statut, pa.OccupantID)
	}
}

func TestReleasePosteStampsMotif(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")

	if _, err := env.eng.AssignAgentToPoste(ctx, poste.ID, agent.ID, "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	p, err := env.eng.ReleasePoste(ctx, poste.ID, "tester")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if p.Statut != domain.PosteLibre || p.OccupantID != nil {
		t.Fatalf("expected free poste, got %s occupant %v", p.Statut, p.OccupantID)
	}
	history, _ := env.eng.Repo.ListAffectations(ctx, agent.ID)
	if len(history) != 1 {
		t.Fatalf("expected 1 row, got %d", len(history))
	}
	if history[0].MotifFin == nil || *history[0].MotifFin != engine.MotifLiberation {
		t.Fatalf("expected motif %q, got %v", engine.MotifLiberation, history[0].MotifFin)
	}
}

func TestPosteHistoryBlocksEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")

	if _, err := env.eng.AssignAgentToPoste(ctx, poste.ID, agent.ID, "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.eng.ReleasePoste(ctx, poste.ID, "tester"); err != nil {
		t.Fatalf("release: %v", err)
	}

	titre := "Nouveau titre"
	_, err := env.eng.UpdatePoste(ctx, poste.ID, &titre, nil, nil, nil, "tester")
	var hist *engine.HistoricalIntegrityError
	if !errors.As(err, &hist) {
		t.Fatalf("expected HistoricalIntegrityError on update, got %v", err)
	}
	err = env.eng.DeletePoste(ctx, poste.ID, "tester")
	if !errors.As(err, &hist) {
		t.Fatalf("expected HistoricalIntegrityError on delete, got %v", err)
	}
}

func TestPublicDemandeEntersChainAtCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.eng.CreatePublicDemande(ctx, engine.DemandeCreateOptions{
		Motif: "Candidature externe",
		Demandeur: &domain.Demandeur{
			Nom:    "Ba",
			Prenom: "Moussa",
			Email:  "moussa.ba@example.org",
		},
	})
	if err != nil {
		t.Fatalf("create public demande: %v", err)
	}
	// The requester cannot authenticate to submit later, so creation is
	// the submission.
	if d.Statut != domain.StatutValidationHie {
		t.Fatalf("expected %s, got %s", domain.StatutValidationHie, d.Statut)
	}
	if d.DateSoumission == nil {
		t.Fatal("expected date_soumission to be stamped at creation")
	}
	if d.AgentID != nil {
		t.Fatalf("public demande must not carry an agent, got %v", d.AgentID)
	}
	env.validate(t, d.ID, domain.DecisionValide, nil)
	got, err := env.eng.GetDemande(ctx, d.ID)
	if err != nil {
		t.Fatalf("get demande: %v", err)
	}
	if got.Statut != domain.StatutEtudeDGR {
		t.Fatalf("public demande should advance through the chain, got %s", got.Statut)
	}
}

func TestRoleDependentEntryPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")

	cases := []struct {
		role string
		want string
	}{
		{domain.RoleDGR, domain.StatutEtudeDGR},
		{domain.RoleCVR, domain.StatutVerifCVR},
	}
	for _, tc := range cases {
		d, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
			AgentID:      agent.ID,
			Motif:        "Redéploiement",
			CreatorRoles: []string{tc.role},
			ActorID:      "chef-" + tc.role,
		})
		if err != nil {
			t.Fatalf("create as %s: %v", tc.role, err)
		}
		if d.Statut != tc.want {
			t.Fatalf("%s creator should enter at %s, got %s", tc.role, tc.want, d.Statut)
		}
		if d.DateSoumission == nil {
			t.Fatalf("%s creator: expected date_soumission stamped at creation", tc.role)
		}
	}

	// The same skip applies when a draft is submitted with the role.
	draft, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID: agent.ID,
		Motif:   "Redéploiement",
		ActorID: agent.ID,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	d, err := env.eng.Soumettre(ctx, draft.ID, []string{domain.RoleDGR}, "chef-dgr")
	if err != nil {
		t.Fatalf("soumettre as DGR: %v", err)
	}
	if d.Statut != domain.StatutEtudeDGR {
		t.Fatalf("DGR submitter should enter at %s, got %s", domain.StatutEtudeDGR, d.Statut)
	}
}

func TestResubmissionIsLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d := env.submittedDemande(t, agent.ID, poste.ID)

	var locked *engine.RequestLockedError
	_, err := env.eng.Soumettre(ctx, d.ID, nil, agent.ID)
	if !errors.As(err, &locked) {
		t.Fatalf("expected RequestLockedError on resubmission, got %v", err)
	}

	// A request advanced at creation time is equally locked.
	skipped, err := env.eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID:      agent.ID,
		Motif:        "Redéploiement",
		CreatorRoles: []string{domain.RoleDGR},
		ActorID:      "chef-dgr",
	})
	if err != nil {
		t.Fatalf("create as DGR: %v", err)
	}
	_, err = env.eng.Soumettre(ctx, skipped.ID, []string{domain.RoleDGR}, "chef-dgr")
	if !errors.As(err, &locked) {
		t.Fatalf("expected RequestLockedError after skip-ahead creation, got %v", err)
	}
}

func TestEffectiveDateNormalizedToUTC(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agent := env.seedAgent(t, "MAT-001", "A1")
	poste := env.seedPoste(t, "A1")
	d := env.submittedDemande(t, agent.ID, poste.ID)

	// 10:00-11:00 is 21:00Z, nine hours after the clock's 12:00Z. A raw
	// string compare against a Z timestamp would call it already due.
	effective := env.now.Add(9 * time.Hour).In(time.FixedZone("", -11*3600)).Format(time.RFC3339)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, nil)
	env.validate(t, d.ID, domain.DecisionValide, &effective)

	got, err := env.eng.GetDemande(ctx, d.ID)
	if err != nil {
		t.Fatalf("get demande: %v", err)
	}
	want := env.now.Add(9 * time.Hour).Format(time.RFC3339)
	if got.DateMutation == nil || *got.DateMutation != want {
		t.Fatalf("expected date_mutation stored as %s, got %v", want, got.DateMutation)
	}

	res, err := env.eng.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Candidates != 0 {
		t.Fatalf("mutation is nine hours out, expected no candidates, got %d", res.Candidates)
	}

	env.now = env.now.Add(10 * time.Hour)
	res, err = env.eng.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Candidates != 1 || res.Applied != 1 {
		t.Fatalf("expected the mutation applied once due, got %+v", res)
	}
}
