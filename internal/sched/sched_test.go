package sched_test

import (
	"context"
	"testing"
	"time"

	"mutaline/internal/config"
	"mutaline/internal/db"
	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/migrate"
	"mutaline/internal/sched"
)

func TestSchedulerAppliesDueMutations(t *testing.T) {
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Sweep.Interval = "10ms"
	eng := engine.New(conn, cfg)
	ctx := context.Background()

	agent, err := eng.CreateAgent(ctx, engine.AgentCreateOptions{
		Matricule:    "MAT-001",
		Nom:          "Ndiaye",
		Prenom:       "Fatou",
		DateEmbauche: time.Now().UTC().AddDate(-10, 0, 0).Format(time.RFC3339),
		GradeID:      "A1",
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	poste, err := eng.CreatePoste(ctx, engine.PosteCreateOptions{
		Intitule:    "Chef de bureau",
		GradeRequis: "A1",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create poste: %v", err)
	}

	d, err := eng.CreateDemande(ctx, engine.DemandeCreateOptions{
		AgentID:         agent.ID,
		Motif:           "Rapprochement familial",
		PosteSouhaiteID: poste.ID,
		ActorID:         agent.ID,
	})
	if err != nil {
		t.Fatalf("create demande: %v", err)
	}
	if _, err := eng.Soumettre(ctx, d.ID, nil, agent.ID); err != nil {
		t.Fatalf("soumettre: %v", err)
	}
	// Approve through the chain with a past effective date so only the
	// sweep applies it.
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	for i := 0; i < len(domain.GateChain); i++ {
		got, err := eng.Repo.GetDemande(ctx, d.ID)
		if err != nil {
			t.Fatalf("get demande: %v", err)
		}
		gate, ok := domain.GateForStatus(got.Statut)
		if !ok {
			t.Fatalf("no gate owns status %s", got.Statut)
		}
		opts := engine.ValidationOptions{
			DemandeID:    d.ID,
			Role:         gate,
			ValidateurID: "validator",
			Decision:     domain.DecisionValide,
			ActorID:      "validator",
		}
		if gate == domain.RoleDNCF {
			opts.DateMutation = &past
		}
		if _, err := eng.RecordValidation(ctx, opts); err != nil {
			t.Fatalf("validation at %s: %v", gate, err)
		}
	}

	s := sched.New(eng)
	if s.Interval != 10*time.Millisecond {
		t.Fatalf("expected interval from config, got %s", s.Interval)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p, err := eng.Repo.GetPoste(ctx, poste.ID)
		if err != nil {
			t.Fatalf("get poste: %v", err)
		}
		if p.Statut == domain.PosteOccupe {
			if p.OccupantID == nil || *p.OccupantID != agent.ID {
				t.Fatalf("unexpected occupant %v", p.OccupantID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduler never applied the due mutation")
}

func TestSchedulerDisabled(t *testing.T) {
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Sweep.Enabled = false
	eng := engine.New(conn, cfg)

	s := sched.New(eng)
	s.Start()
	// Stop must be safe when the loop never started.
	s.Stop()
}
