package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"mutaline/internal/config"
	"mutaline/internal/domain"
	"mutaline/internal/events"
	"mutaline/internal/notify"
	"mutaline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Notify notify.Notifier
	Mail   notify.Mailer
	Log    *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Notify: notify.StoreNotifier{Repo: r},
		Mail:   notify.LogMailer{},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Anciennete returns the whole years of service since the hire date.
func Anciennete(dateEmbauche string, now time.Time) (int, error) {
	hired, err := time.Parse(time.RFC3339, dateEmbauche)
	if err != nil {
		return 0, err
	}
	years := now.Year() - hired.Year()
	anniversary := hired.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years, nil
}

// Priorite is the tenure-weighted ranking score used by downstream
// business processes.
func (e Engine) Priorite(anciennete int) int {
	poids := 10
	if e.Config != nil && e.Config.Regles.PoidsAnciennete > 0 {
		poids = e.Config.Regles.PoidsAnciennete
	}
	return anciennete * poids
}

// AgentCreateOptions are parameters for registering an agent.
type AgentCreateOptions struct {
	Matricule     string
	Nom           string
	Prenom        string
	DateNaissance string
	DateEmbauche  string
	NumeroCNI     string
	GradeID       string
	ServiceID     string
	LocaliteID    string
	ActorID       string
}

func (e Engine) CreateAgent(ctx context.Context, opts AgentCreateOptions) (domain.Agent, error) {
	if opts.Matricule == "" {
		return domain.Agent{}, errors.New("matricule is required")
	}
	if opts.Nom == "" || opts.Prenom == "" {
		return domain.Agent{}, errors.New("nom and prenom are required")
	}
	if _, err := time.Parse(time.RFC3339, opts.DateEmbauche); err != nil {
		return domain.Agent{}, errors.New("date_embauche must be RFC3339")
	}
	now := e.nowRFC()
	a := domain.Agent{
		ID:            uuid.New().String(),
		Matricule:     opts.Matricule,
		Nom:           opts.Nom,
		Prenom:        opts.Prenom,
		DateNaissance: optionalString(opts.DateNaissance),
		DateEmbauche:  opts.DateEmbauche,
		NumeroCNI:     optionalString(opts.NumeroCNI),
		GradeID:       optionalString(opts.GradeID),
		ServiceID:     optionalString(opts.ServiceID),
		LocaliteID:    optionalString(opts.LocaliteID),
		Statut:        "ACTIF",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO agents(id,matricule,nom,prenom,date_naissance,date_embauche,numero_cni,grade_id,service_id,localite_id,statut,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Matricule, a.Nom, a.Prenom, nullablePtr(a.DateNaissance), a.DateEmbauche, nullablePtr(a.NumeroCNI),
		nullablePtr(a.GradeID), nullablePtr(a.ServiceID), nullablePtr(a.LocaliteID), a.Statut, a.CreatedAt, a.UpdatedAt); err != nil {
		return domain.Agent{}, err
	}
	if err := e.Events.Append(ctx, tx, "agent.created", events.KindAgent, a.ID, opts.ActorID, events.EventPayload{"matricule": a.Matricule}); err != nil {
		return domain.Agent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

func (e Engine) DeleteAgent(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeleteAgent(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "agent.deleted", events.KindAgent, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// PosteCreateOptions are parameters for registering a poste.
type PosteCreateOptions struct {
	Intitule    string
	GradeRequis string
	ServiceID   string
	LocaliteID  string
	Statut      string
	ActorID     string
}

func (e Engine) CreatePoste(ctx context.Context, opts PosteCreateOptions) (domain.Poste, error) {
	if opts.Intitule == "" {
		return domain.Poste{}, errors.New("intitule is required")
	}
	statut := opts.Statut
	if statut == "" {
		statut = domain.PosteLibre
	}
	if statut != domain.PosteLibre && statut != domain.PosteCritique {
		return domain.Poste{}, errors.New("a new poste must be LIBRE or CRITIQUE")
	}
	now := e.nowRFC()
	p := domain.Poste{
		ID:          uuid.New().String(),
		Intitule:    opts.Intitule,
		GradeRequis: optionalString(opts.GradeRequis),
		ServiceID:   optionalString(opts.ServiceID),
		LocaliteID:  optionalString(opts.LocaliteID),
		Statut:      statut,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Poste{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO postes(id,intitule,grade_requis,service_id,localite_id,statut,occupant_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Intitule, nullablePtr(p.GradeRequis), nullablePtr(p.ServiceID), nullablePtr(p.LocaliteID), p.Statut, nil, p.CreatedAt, p.UpdatedAt); err != nil {
		return domain.Poste{}, err
	}
	if err := e.Events.Append(ctx, tx, "poste.created", events.KindPoste, p.ID, opts.ActorID, events.EventPayload{"intitule": p.Intitule}); err != nil {
		return domain.Poste{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Poste{}, err
	}
	return p, nil
}

// ensurePosteMutable enforces the historical integrity guard: a poste with
// a current occupant or any past assignment row may not be modified or
// removed.
func (e Engine) ensurePosteMutable(ctx context.Context, id string) error {
	p, err := e.Repo.GetPoste(ctx, id)
	if err != nil {
		return err
	}
	if p.OccupantID != nil {
		return &HistoricalIntegrityError{PosteID: id}
	}
	n, err := e.Repo.CountAffectationsForPoste(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &HistoricalIntegrityError{PosteID: id}
	}
	return nil
}

func (e Engine) UpdatePoste(ctx context.Context, id string, intitule, gradeRequis, serviceID, localiteID *string, actorID string) (domain.Poste, error) {
	if err := e.ensurePosteMutable(ctx, id); err != nil {
		return domain.Poste{}, err
	}
	if err := e.Repo.UpdatePoste(ctx, id, intitule, gradeRequis, serviceID, localiteID, e.nowRFC()); err != nil {
		return domain.Poste{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Poste{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "poste.updated", events.KindPoste, id, actorID, nil); err != nil {
		return domain.Poste{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Poste{}, err
	}
	return e.Repo.GetPoste(ctx, id)
}

func (e Engine) DeletePoste(ctx context.Context, id, actorID string) error {
	if err := e.ensurePosteMutable(ctx, id); err != nil {
		return err
	}
	if err := e.Repo.DeletePoste(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "poste.deleted", events.KindPoste, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
