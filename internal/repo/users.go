package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"mutaline/internal/domain"
)

const userCols = `id,email,nom,roles,service_id,agent_id,active,created_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var roles string
	var service, agent sql.NullString
	err := scan(&u.ID, &u.Email, &u.Nom, &roles, &service, &agent, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if roles != "" {
		if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
			return u, err
		}
	}
	u.ServiceID = strPtr(service)
	u.AgentID = strPtr(agent)
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	roles, err := json.Marshal(u.Roles)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO users(`+userCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.Nom, string(roles), nullableStringPtr(u.ServiceID), nullableStringPtr(u.AgentID), u.Active, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByAgent(ctx context.Context, agentID string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE agent_id=?`, agentID)
	return scanUser(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, nil
}

// ResponsablesForService returns the active users holding the RESPONSABLE
// role in a service. Membership is by service, not a stored reference on
// the agent.
func (r Repo) ResponsablesForService(ctx context.Context, serviceID string) ([]domain.User, error) {
	if serviceID == "" {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE service_id=? AND active=1`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		if domain.HasRole(u.Roles, domain.RoleResponsable) {
			res = append(res, u)
		}
	}
	return res, rows.Err()
}
