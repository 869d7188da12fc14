package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

const roleSelect = "SELECT id::text, name, description, created_at, updated_at FROM roles"

type roles struct{ s *Store }

func scanRole(row pgx.Row) (*store.Role, error) {
	var r store.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r roles) FindAll(ctx context.Context) ([]store.Role, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	rows, err := r.s.pool.Query(ctx, roleSelect+" ORDER BY name")
	if err != nil {
		return nil, mapErr("list roles", err)
	}
	defer rows.Close()

	out := make([]store.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapErr("list roles", err)
		}
		out = append(out, *role)
	}
	return out, mapErr("list roles", rows.Err())
}

func (r roles) find(ctx context.Context, op, where string, arg string) (*store.Role, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	role, err := scanRole(r.s.pool.QueryRow(ctx, roleSelect+" "+where, arg))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return role, nil
}

func (r roles) FindByID(ctx context.Context, id string) (*store.Role, error) {
	return r.find(ctx, "find role by id", "WHERE id = $1", id)
}

func (r roles) FindByName(ctx context.Context, name string) (*store.Role, error) {
	return r.find(ctx, "find role by name", "WHERE name = $1", name)
}

func (r roles) Create(ctx context.Context, name, description string) (*store.Role, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	role, err := scanRole(r.s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, $2)
		RETURNING id::text, name, description, created_at, updated_at`, name, description))
	if err != nil {
		return nil, mapErr("create role", err)
	}
	return role, nil
}

func (r roles) Update(ctx context.Context, id, name, description string) (*store.Role, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	role, err := scanRole(r.s.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now() WHERE id = $1
		RETURNING id::text, name, description, created_at, updated_at`, id, name, description))
	if err != nil {
		return nil, mapErr("update role", err)
	}
	return role, nil
}

// Delete refuses roles that users still reference. The foreign key enforces
// the same rule; the explicit check gives the caller a precise error.
func (r roles) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx, `
		DELETE FROM roles WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM users WHERE role_id = $1)`, id)
	if err != nil {
		return mapErr("delete role", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return store.ErrRoleInUse
}

func (r roles) CountUsers(ctx context.Context, id string) (int, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	var n int
	if err := r.s.pool.QueryRow(ctx, "SELECT count(*) FROM users WHERE role_id = $1", id).Scan(&n); err != nil {
		return 0, mapErr("count role users", err)
	}
	return n, nil
}
