package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

type refreshTokens struct{ s *Store }

const refreshSelect = "SELECT id::text, token, user_id::text, expires_at, is_revoked, created_at FROM refresh_tokens"

func scanRefresh(row pgx.Row) (*store.RefreshToken, error) {
	var t store.RefreshToken
	if err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create assigns the id client-side so the unique placeholder can embed it.
func (r refreshTokens) Create(ctx context.Context, userID string, expiresAt time.Time) (*store.RefreshToken, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	id := uuid.NewString()
	t, err := scanRefresh(r.s.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at) VALUES ($1, $2, $3, $4)
		RETURNING id::text, token, user_id::text, expires_at, is_revoked, created_at`,
		id, "pending:"+id, userID, expiresAt))
	if err != nil {
		return nil, mapErr("create refresh token", err)
	}
	return t, nil
}

func (r refreshTokens) Stamp(ctx context.Context, id, token string) error {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx, "UPDATE refresh_tokens SET token = $2 WHERE id = $1", id, token)
	if err != nil {
		return mapErr("stamp refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r refreshTokens) find(ctx context.Context, op, where, arg string) (*store.RefreshToken, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	t, err := scanRefresh(r.s.pool.QueryRow(ctx, refreshSelect+" "+where, arg))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return t, nil
}

func (r refreshTokens) FindByID(ctx context.Context, id string) (*store.RefreshToken, error) {
	return r.find(ctx, "find refresh token", "WHERE id = $1", id)
}

func (r refreshTokens) FindByToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	return r.find(ctx, "find refresh token by value", "WHERE token = $1", token)
}

// Revoke is a conditional update: of two concurrent redemptions only one sees
// a row affected.
func (r refreshTokens) Revoke(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx,
		"UPDATE refresh_tokens SET is_revoked = TRUE WHERE id = $1 AND is_revoked = FALSE", id)
	if err != nil {
		return false, mapErr("revoke refresh token", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r refreshTokens) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx,
		"UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE", userID)
	if err != nil {
		return 0, mapErr("revoke user refresh tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

type verifications struct{ s *Store }

const verificationSelect = `
SELECT id::text, token, type, user_id::text, COALESCE(new_email, ''), expires_at, used_at, created_at
FROM verification_tokens`

func scanVerification(row pgx.Row) (*store.VerificationToken, error) {
	var v store.VerificationToken
	var typ string
	if err := row.Scan(&v.ID, &v.Token, &typ, &v.UserID, &v.NewEmail, &v.ExpiresAt, &v.UsedAt, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Type = store.VerificationType(typ)
	return &v, nil
}

func (r verifications) Create(ctx context.Context, in store.VerificationToken) (*store.VerificationToken, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	var newEmail any
	if in.NewEmail != "" {
		newEmail = in.NewEmail
	}
	v, err := scanVerification(r.s.pool.QueryRow(ctx, `
		INSERT INTO verification_tokens (token, type, user_id, new_email, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, token, type, user_id::text, COALESCE(new_email, ''), expires_at, used_at, created_at`,
		in.Token, string(in.Type), in.UserID, newEmail, in.ExpiresAt))
	if err != nil {
		return nil, mapErr("create verification token", err)
	}
	return v, nil
}

func (r verifications) FindByToken(ctx context.Context, token string) (*store.VerificationToken, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	v, err := scanVerification(r.s.pool.QueryRow(ctx, verificationSelect+" WHERE token = $1", token))
	if err != nil {
		return nil, mapErr("find verification token", err)
	}
	return v, nil
}

func (r verifications) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx,
		"UPDATE verification_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL", id, at)
	if err != nil {
		return false, mapErr("mark verification token used", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r verifications) CountSince(ctx context.Context, userID string, typ store.VerificationType, since time.Time) (int, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	var n int
	err := r.s.pool.QueryRow(ctx,
		"SELECT count(*) FROM verification_tokens WHERE user_id = $1 AND type = $2 AND created_at >= $3",
		userID, string(typ), since).Scan(&n)
	if err != nil {
		return 0, mapErr("count verification tokens", err)
	}
	return n, nil
}

func (r verifications) LatestByUser(ctx context.Context, userID string, limit int) ([]store.VerificationToken, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	rows, err := r.s.pool.Query(ctx,
		verificationSelect+" WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", userID, limit)
	if err != nil {
		return nil, mapErr("latest verification tokens", err)
	}
	defer rows.Close()

	out := make([]store.VerificationToken, 0, limit)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, mapErr("latest verification tokens", err)
		}
		out = append(out, *v)
	}
	return out, mapErr("latest verification tokens", rows.Err())
}
