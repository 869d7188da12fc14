package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

const userSelect = `
SELECT u.id::text, u.email, COALESCE(u.password_hash, ''), u.name, u.email_verified, u.email_verified_at,
       u.role_id::text, u.created_at, u.updated_at,
       r.id::text, r.name, r.description, r.created_at, r.updated_at
FROM users u
JOIN roles r ON r.id = u.role_id`

type users struct{ s *Store }

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.EmailVerified, &u.EmailVerifiedAt,
		&u.RoleID, &u.CreatedAt, &u.UpdatedAt,
		&u.Role.ID, &u.Role.Name, &u.Role.Description, &u.Role.CreatedAt, &u.Role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r users) one(ctx context.Context, op, where string, args ...any) (*store.User, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	u, err := scanUser(r.s.pool.QueryRow(ctx, userSelect+" "+where, args...))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

func (r users) many(ctx context.Context, op, tail string, args ...any) ([]store.User, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	rows, err := r.s.pool.Query(ctx, userSelect+" "+tail, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	out := make([]store.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, *u)
	}
	return out, mapErr(op, rows.Err())
}

func (r users) count(ctx context.Context, op, query string, args ...any) (int, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	var n int
	if err := r.s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapErr(op, err)
	}
	return n, nil
}

func (r users) FindByID(ctx context.Context, id string) (*store.User, error) {
	return r.one(ctx, "find user by id", "WHERE u.id = $1", id)
}

func (r users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return r.one(ctx, "find user by email", "WHERE lower(u.email) = lower($1)", strings.TrimSpace(email))
}

func (r users) FindAll(ctx context.Context, page store.Page) ([]store.User, error) {
	limit, offset := limitOffset(page)
	return r.many(ctx, "list users", "ORDER BY u.created_at DESC, u.id LIMIT $1 OFFSET $2", limit, offset)
}

func (r users) Count(ctx context.Context) (int, error) {
	return r.count(ctx, "count users", "SELECT count(*) FROM users")
}

func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(query))
	return "%" + escaped + "%"
}

func (r users) Search(ctx context.Context, query string, page store.Page) ([]store.User, error) {
	limit, offset := limitOffset(page)
	return r.many(ctx, "search users",
		"WHERE u.email ILIKE $1 OR u.name ILIKE $1 ORDER BY u.created_at DESC, u.id LIMIT $2 OFFSET $3",
		likePattern(query), limit, offset)
}

func (r users) CountSearch(ctx context.Context, query string) (int, error) {
	return r.count(ctx, "count search users",
		"SELECT count(*) FROM users u WHERE u.email ILIKE $1 OR u.name ILIKE $1", likePattern(query))
}

func (r users) FindByRoleID(ctx context.Context, roleID string, page store.Page) ([]store.User, error) {
	limit, offset := limitOffset(page)
	return r.many(ctx, "list users by role",
		"WHERE u.role_id = $1 ORDER BY u.created_at DESC, u.id LIMIT $2 OFFSET $3", roleID, limit, offset)
}

func (r users) Create(ctx context.Context, in store.NewUser) (*store.User, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()

	var hash any
	if in.PasswordHash != "" {
		hash = in.PasswordHash
	}
	var id string
	err := r.s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role_id, email_verified, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $5 THEN now() END)
		RETURNING id::text`,
		strings.TrimSpace(in.Email), hash, in.Name, in.RoleID, in.EmailVerified,
	).Scan(&id)
	if err != nil {
		return nil, mapErr("create user", err)
	}
	return r.FindByID(ctx, id)
}

func (r users) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r users) Update(ctx context.Context, id string, upd store.UserUpdate) (*store.User, error) {
	var email any
	if upd.Email != nil {
		email = strings.TrimSpace(*upd.Email)
	}
	err := r.exec(ctx, "update user", `
		UPDATE users
		SET name = COALESCE($2, name), email = COALESCE($3, email), updated_at = now()
		WHERE id = $1`, id, upd.Name, email)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r users) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "update password",
		"UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1", id, passwordHash)
}

func (r users) SetRole(ctx context.Context, id, roleID string) (*store.User, error) {
	if err := r.exec(ctx, "set role",
		"UPDATE users SET role_id = $2, updated_at = now() WHERE id = $1", id, roleID); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "mark email verified",
		"UPDATE users SET email_verified = TRUE, email_verified_at = $2, updated_at = now() WHERE id = $1", id, at)
}

func (r users) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete user", "DELETE FROM users WHERE id = $1", id)
}
