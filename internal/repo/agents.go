package repo

import (
	"context"
	"database/sql"
	"strings"

	"mutaline/internal/domain"
)

const agentCols = `id,matricule,nom,prenom,date_naissance,date_embauche,numero_cni,grade_id,service_id,localite_id,statut,created_at,updated_at`

func scanAgent(scan func(dest ...any) error) (domain.Agent, error) {
	var a domain.Agent
	var naissance, cni, grade, service, localite sql.NullString
	err := scan(&a.ID, &a.Matricule, &a.Nom, &a.Prenom, &naissance, &a.DateEmbauche, &cni, &grade, &service, &localite, &a.Statut, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.DateNaissance = strPtr(naissance)
	a.NumeroCNI = strPtr(cni)
	a.GradeID = strPtr(grade)
	a.ServiceID = strPtr(service)
	a.LocaliteID = strPtr(localite)
	return a, nil
}

func (r Repo) InsertAgent(ctx context.Context, a domain.Agent) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO agents(`+agentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Matricule, a.Nom, a.Prenom, nullableStringPtr(a.DateNaissance), a.DateEmbauche,
		nullableStringPtr(a.NumeroCNI), nullableStringPtr(a.GradeID), nullableStringPtr(a.ServiceID),
		nullableStringPtr(a.LocaliteID), a.Statut, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE id=?`, id)
	return scanAgent(row.Scan)
}

func (r Repo) GetAgentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Agent, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE id=?`, id)
	return scanAgent(row.Scan)
}

func (r Repo) GetAgentByMatricule(ctx context.Context, matricule string) (domain.Agent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE matricule=?`, matricule)
	return scanAgent(row.Scan)
}

type AgentFilters struct {
	ServiceID string
	Statut    string
	Limit     int
}

func (r Repo) ListAgents(ctx context.Context, f AgentFilters) ([]domain.Agent, error) {
	var clauses []string
	var args []any
	if f.ServiceID != "" {
		clauses = append(clauses, "service_id=?")
		args = append(args, f.ServiceID)
	}
	if f.Statut != "" {
		clauses = append(clauses, "statut=?")
		args = append(args, f.Statut)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + agentCols + ` FROM agents ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) DeleteAgent(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM agents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAffectation(scan func(dest ...any) error) (domain.Affectation, error) {
	var af domain.Affectation
	var fin, motif sql.NullString
	err := scan(&af.ID, &af.AgentID, &af.PosteID, &af.DateDebut, &fin, &motif)
	if err == sql.ErrNoRows {
		return af, ErrNotFound
	}
	if err != nil {
		return af, err
	}
	af.DateFin = strPtr(fin)
	af.MotifFin = strPtr(motif)
	return af, nil
}

func (r Repo) InsertAffectation(ctx context.Context, tx *sql.Tx, af domain.Affectation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO affectations(id,agent_id,poste_id,date_debut,date_fin,motif_fin) VALUES (?,?,?,?,?,?)`,
		af.ID, af.AgentID, af.PosteID, af.DateDebut, nullableStringPtr(af.DateFin), nullableStringPtr(af.MotifFin))
	return err
}

// CloseAffectation stamps date_fin and motif_fin on one open row.
func (r Repo) CloseAffectation(ctx context.Context, tx *sql.Tx, id, dateFin, motif string) error {
	_, err := tx.ExecContext(ctx, `UPDATE affectations SET date_fin=?, motif_fin=? WHERE id=? AND date_fin IS NULL`, dateFin, motif, id)
	return err
}

// OpenAffectationForAgent returns the agent's current (unclosed) assignment.
func (r Repo) OpenAffectationForAgent(ctx context.Context, tx *sql.Tx, agentID string) (domain.Affectation, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,agent_id,poste_id,date_debut,date_fin,motif_fin FROM affectations WHERE agent_id=? AND date_fin IS NULL`, agentID)
	return scanAffectation(row.Scan)
}

// OpenAffectationForPoste returns the unclosed assignment holding a poste,
// regardless of which agent holds it.
func (r Repo) OpenAffectationForPoste(ctx context.Context, tx *sql.Tx, posteID string) (domain.Affectation, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,agent_id,poste_id,date_debut,date_fin,motif_fin FROM affectations WHERE poste_id=? AND date_fin IS NULL`, posteID)
	return scanAffectation(row.Scan)
}

func (r Repo) ListAffectations(ctx context.Context, agentID string) ([]domain.Affectation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,agent_id,poste_id,date_debut,date_fin,motif_fin FROM affectations WHERE agent_id=? ORDER BY date_debut DESC, id DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Affectation
	for rows.Next() {
		af, err := scanAffectation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, af)
	}
	return res, nil
}

// CountAffectationsForPoste counts every assignment row ever recorded for a
// poste, closed rows included. Used by the historical integrity guard.
func (r Repo) CountAffectationsForPoste(ctx context.Context, posteID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM affectations WHERE poste_id=?`, posteID).Scan(&n)
	return n, err
}
