package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

type socials struct{ s *Store }

const socialSelect = `
SELECT id::text, user_id::text, provider, provider_id, email, COALESCE(provider_data, 'null'::jsonb), created_at, updated_at
FROM social_identities`

func scanSocial(row pgx.Row) (*store.SocialIdentity, error) {
	var si store.SocialIdentity
	var data []byte
	if err := row.Scan(&si.ID, &si.UserID, &si.Provider, &si.ProviderID, &si.Email, &data, &si.CreatedAt, &si.UpdatedAt); err != nil {
		return nil, err
	}
	if string(data) != "null" {
		si.ProviderData = data
	}
	return &si, nil
}

func (r socials) FindByProvider(ctx context.Context, provider, providerID string) (*store.SocialIdentity, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	si, err := scanSocial(r.s.pool.QueryRow(ctx, socialSelect+" WHERE provider = $1 AND provider_id = $2", provider, providerID))
	if err != nil {
		return nil, mapErr("find social identity", err)
	}
	return si, nil
}

func (r socials) Create(ctx context.Context, in store.SocialIdentity) (*store.SocialIdentity, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	var data any
	if len(in.ProviderData) > 0 {
		data = []byte(in.ProviderData)
	}
	si, err := scanSocial(r.s.pool.QueryRow(ctx, `
		INSERT INTO social_identities (user_id, provider, provider_id, email, provider_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, user_id::text, provider, provider_id, email, COALESCE(provider_data, 'null'::jsonb), created_at, updated_at`,
		in.UserID, in.Provider, in.ProviderID, in.Email, data))
	if err != nil {
		return nil, mapErr("create social identity", err)
	}
	return si, nil
}

func (r socials) ListByUser(ctx context.Context, userID string) ([]store.SocialIdentity, error) {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	rows, err := r.s.pool.Query(ctx, socialSelect+" WHERE user_id = $1 ORDER BY provider", userID)
	if err != nil {
		return nil, mapErr("list social identities", err)
	}
	defer rows.Close()

	out := make([]store.SocialIdentity, 0)
	for rows.Next() {
		si, err := scanSocial(rows)
		if err != nil {
			return nil, mapErr("list social identities", err)
		}
		out = append(out, *si)
	}
	return out, mapErr("list social identities", rows.Err())
}

func (r socials) Delete(ctx context.Context, userID, provider string) error {
	ctx, cancel := r.s.ctx(ctx)
	defer cancel()
	tag, err := r.s.pool.Exec(ctx, "DELETE FROM social_identities WHERE user_id = $1 AND provider = $2", userID, provider)
	if err != nil {
		return mapErr("delete social identity", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
