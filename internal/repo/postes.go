package repo

import (
	"context"
	"database/sql"
	"strings"

	"mutaline/internal/domain"
)

const posteCols = `id,intitule,grade_requis,service_id,localite_id,statut,occupant_id,created_at,updated_at`

func scanPoste(scan func(dest ...any) error) (domain.Poste, error) {
	var p domain.Poste
	var grade, service, localite, occupant sql.NullString
	err := scan(&p.ID, &p.Intitule, &grade, &service, &localite, &p.Statut, &occupant, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.GradeRequis = strPtr(grade)
	p.ServiceID = strPtr(service)
	p.LocaliteID = strPtr(localite)
	p.OccupantID = strPtr(occupant)
	return p, nil
}

func (r Repo) InsertPoste(ctx context.Context, p domain.Poste) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO postes(`+posteCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Intitule, nullableStringPtr(p.GradeRequis), nullableStringPtr(p.ServiceID),
		nullableStringPtr(p.LocaliteID), p.Statut, nullableStringPtr(p.OccupantID), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPoste(ctx context.Context, id string) (domain.Poste, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+posteCols+` FROM postes WHERE id=?`, id)
	return scanPoste(row.Scan)
}

func (r Repo) GetPosteTx(ctx context.Context, tx *sql.Tx, id string) (domain.Poste, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+posteCols+` FROM postes WHERE id=?`, id)
	return scanPoste(row.Scan)
}

type PosteFilters struct {
	Statut    string
	ServiceID string
	Limit     int
}

func (r Repo) ListPostes(ctx context.Context, f PosteFilters) ([]domain.Poste, error) {
	var clauses []string
	var args []any
	if f.Statut != "" {
		clauses = append(clauses, "statut=?")
		args = append(args, f.Statut)
	}
	if f.ServiceID != "" {
		clauses = append(clauses, "service_id=?")
		args = append(args, f.ServiceID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + posteCols + ` FROM postes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Poste
	for rows.Next() {
		p, err := scanPoste(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// SetPosteOccupant is reserved for the affectations engine; nothing else
// writes occupant_id or statut.
func (r Repo) SetPosteOccupant(ctx context.Context, tx *sql.Tx, posteID string, occupantID *string, statut, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE postes SET occupant_id=?, statut=?, updated_at=? WHERE id=?`,
		nullableStringPtr(occupantID), statut, updatedAt, posteID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdatePoste(ctx context.Context, id string, intitule, gradeRequis, serviceID, localiteID *string, updatedAt string) error {
	var fields []string
	var args []any
	if intitule != nil {
		fields = append(fields, "intitule=?")
		args = append(args, *intitule)
	}
	if gradeRequis != nil {
		fields = append(fields, "grade_requis=?")
		args = append(args, nullable(*gradeRequis))
	}
	if serviceID != nil {
		fields = append(fields, "service_id=?")
		args = append(args, nullable(*serviceID))
	}
	if localiteID != nil {
		fields = append(fields, "localite_id=?")
		args = append(args, nullable(*localiteID))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE postes SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePoste(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM postes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
