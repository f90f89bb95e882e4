package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"mutaline/internal/domain"
)

const demandeCols = `id,type,agent_id,motif,poste_souhaite_id,localites_souhaitees,statut,date_soumission,date_mutation,demandeur_json,created_at,updated_at`

func scanDemande(scan func(dest ...any) error) (domain.Demande, error) {
	var d domain.Demande
	var agent, poste, localites, soumission, mutation, demandeur sql.NullString
	err := scan(&d.ID, &d.Type, &agent, &d.Motif, &poste, &localites, &d.Statut, &soumission, &mutation, &demandeur, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.AgentID = strPtr(agent)
	d.PosteSouhaiteID = strPtr(poste)
	d.DateSoumission = strPtr(soumission)
	d.DateMutation = strPtr(mutation)
	if localites.Valid && localites.String != "" {
		if err := json.Unmarshal([]byte(localites.String), &d.LocalitesSouhaitees); err != nil {
			return d, err
		}
	}
	if demandeur.Valid && demandeur.String != "" {
		var dem domain.Demandeur
		if err := json.Unmarshal([]byte(demandeur.String), &dem); err != nil {
			return d, err
		}
		d.Demandeur = &dem
	}
	return d, nil
}

func localitesJSON(localites []string) any {
	if len(localites) == 0 {
		return nil
	}
	b, _ := json.Marshal(localites)
	return string(b)
}

func demandeurJSON(dem *domain.Demandeur) any {
	if dem == nil {
		return nil
	}
	b, _ := json.Marshal(dem)
	return string(b)
}

func (r Repo) InsertDemande(ctx context.Context, d domain.Demande) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO demandes(`+demandeCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Type, nullableStringPtr(d.AgentID), d.Motif, nullableStringPtr(d.PosteSouhaiteID),
		localitesJSON(d.LocalitesSouhaitees), d.Statut, nullableStringPtr(d.DateSoumission),
		nullableStringPtr(d.DateMutation), demandeurJSON(d.Demandeur), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetDemande(ctx context.Context, id string) (domain.Demande, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+demandeCols+` FROM demandes WHERE id=?`, id)
	return scanDemande(row.Scan)
}

func (r Repo) GetDemandeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Demande, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+demandeCols+` FROM demandes WHERE id=?`, id)
	return scanDemande(row.Scan)
}

type DemandeFilters struct {
	Statut  string
	Type    string
	AgentID string
	Limit   int
}

func (r Repo) ListDemandes(ctx context.Context, f DemandeFilters) ([]domain.Demande, error) {
	var clauses []string
	var args []any
	if f.Statut != "" {
		clauses = append(clauses, "statut=?")
		args = append(args, f.Statut)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id=?")
		args = append(args, f.AgentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + demandeCols + ` FROM demandes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Demande
	for rows.Next() {
		d, err := scanDemande(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// UpdateDemandeDraft rewrites the editable fields of a draft.
func (r Repo) UpdateDemandeDraft(ctx context.Context, tx *sql.Tx, d domain.Demande) error {
	_, err := tx.ExecContext(ctx, `UPDATE demandes SET motif=?, poste_souhaite_id=?, localites_souhaitees=?, updated_at=? WHERE id=?`,
		d.Motif, nullableStringPtr(d.PosteSouhaiteID), localitesJSON(d.LocalitesSouhaitees), d.UpdatedAt, d.ID)
	return err
}

// TransitionDemande moves a demande from one status to another with an
// optimistic precondition on the current status. Returns ErrNotFound when
// the row no longer holds fromStatut, which callers treat as a lost race.
func (r Repo) TransitionDemande(ctx context.Context, tx *sql.Tx, id, fromStatut, toStatut, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE demandes SET statut=?, updated_at=? WHERE id=? AND statut=?`,
		toStatut, updatedAt, id, fromStatut)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetDemandeSoumission(ctx context.Context, tx *sql.Tx, id, statut, dateSoumission, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE demandes SET statut=?, date_soumission=?, updated_at=? WHERE id=? AND statut=?`,
		statut, dateSoumission, updatedAt, id, domain.StatutBrouillon)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetDemandeDateMutation(ctx context.Context, tx *sql.Tx, id string, dateMutation *string, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE demandes SET date_mutation=?, updated_at=? WHERE id=?`,
		nullableStringPtr(dateMutation), updatedAt, id)
	return err
}

func (r Repo) DeleteDemande(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM demandes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepCandidates returns accepted demandes whose effective date has been
// reached and that carry both an agent and a target poste. Public demandes
// without an agent reference never qualify.
func (r Repo) SweepCandidates(ctx context.Context, now string) ([]domain.Demande, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+demandeCols+` FROM demandes
WHERE statut=? AND date_mutation IS NOT NULL AND date_mutation<=? AND poste_souhaite_id IS NOT NULL AND agent_id IS NOT NULL
ORDER BY date_mutation ASC, id ASC`, domain.StatutAcceptee, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Demande
	for rows.Next() {
		d, err := scanDemande(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}
