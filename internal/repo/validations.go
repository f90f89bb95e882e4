package repo

import (
	"context"
	"database/sql"

	"mutaline/internal/domain"
)

func (r Repo) InsertValidation(ctx context.Context, tx *sql.Tx, v domain.Validation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO validations(id,demande_id,role,validateur_id,decision,commentaire,decidee_le)
VALUES (?,?,?,?,?,?,?)`,
		v.ID, v.DemandeID, v.Role, v.ValidateurID, v.Decision, nullable(v.Commentaire), v.DecideeLe)
	return err
}

func scanValidation(scan func(dest ...any) error) (domain.Validation, error) {
	var v domain.Validation
	var commentaire sql.NullString
	err := scan(&v.ID, &v.DemandeID, &v.Role, &v.ValidateurID, &v.Decision, &commentaire, &v.DecideeLe)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if commentaire.Valid {
		v.Commentaire = commentaire.String
	}
	return v, nil
}

func (r Repo) GetValidation(ctx context.Context, id string) (domain.Validation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,demande_id,role,validateur_id,decision,commentaire,decidee_le FROM validations WHERE id=?`, id)
	return scanValidation(row.Scan)
}

func (r Repo) ListValidationsByDemande(ctx context.Context, demandeID string) ([]domain.Validation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,demande_id,role,validateur_id,decision,commentaire,decidee_le
FROM validations WHERE demande_id=? ORDER BY decidee_le ASC, id ASC`, demandeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Validation
	for rows.Next() {
		v, err := scanValidation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
