// Package memstore is an in-memory implementation of store.Store. It backs the
// test suites and local runs without Postgres, and mirrors the conditional
// update semantics of the SQL implementation.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/store"
)

// Store holds every table in maps guarded by one mutex. Values are copied on
// the way in and out so callers can never alias internal state.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[string]*userRow
	roles         map[string]*store.Role
	refreshTokens map[string]*store.RefreshToken
	verifications map[string]*store.VerificationToken
	socials       map[string]*store.SocialIdentity
}

type userRow struct {
	store.User
	emailKey string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		users:         make(map[string]*userRow),
		roles:         make(map[string]*store.Role),
		refreshTokens: make(map[string]*store.RefreshToken),
		verifications: make(map[string]*store.VerificationToken),
		socials:       make(map[string]*store.SocialIdentity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Users() store.Users                           { return users{s} }
func (s *Store) Roles() store.Roles                           { return roles{s} }
func (s *Store) RefreshTokens() store.RefreshTokens           { return refreshTokens{s} }
func (s *Store) VerificationTokens() store.VerificationTokens { return verifications{s} }
func (s *Store) Socials() store.Socials                       { return socials{s} }

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() {}

func newID() string { return uuid.NewString() }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------------------------------------------------------------------------
// users

type users struct{ s *Store }

func (r users) joined(row *userRow) store.User {
	u := row.User
	if role, ok := r.s.roles[u.RoleID]; ok {
		u.Role = *role
	}
	if u.EmailVerifiedAt != nil {
		at := *u.EmailVerifiedAt
		u.EmailVerifiedAt = &at
	}
	return u
}

func (r users) FindByID(ctx context.Context, id string) (*store.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := r.joined(row)
	return &u, nil
}

func (r users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	key := normalizeEmail(email)
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, row := range r.s.users {
		if row.emailKey == key {
			u := r.joined(row)
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r users) list(match func(*userRow) bool, page store.Page) []store.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]store.User, 0, len(r.s.users))
	for _, row := range r.s.users {
		if match == nil || match(row) {
			out = append(out, r.joined(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page)
}

func paginate[T any](rows []T, page store.Page) []T {
	if page.Offset > 0 {
		if page.Offset >= len(rows) {
			return []T{}
		}
		rows = rows[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(rows) {
		rows = rows[:page.Limit]
	}
	return rows
}

func searchMatcher(query string) func(*userRow) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(row *userRow) bool {
		return strings.Contains(row.emailKey, q) || strings.Contains(strings.ToLower(row.Name), q)
	}
}

func (r users) FindAll(ctx context.Context, page store.Page) ([]store.User, error) {
	return r.list(nil, page), nil
}

func (r users) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

func (r users) Search(ctx context.Context, query string, page store.Page) ([]store.User, error) {
	return r.list(searchMatcher(query), page), nil
}

func (r users) CountSearch(ctx context.Context, query string) (int, error) {
	return len(r.list(searchMatcher(query), store.All)), nil
}

func (r users) FindByRoleID(ctx context.Context, roleID string, page store.Page) ([]store.User, error) {
	return r.list(func(row *userRow) bool { return row.RoleID == roleID }, page), nil
}

func (r users) emailTaken(key, exceptID string) bool {
	for id, row := range r.s.users {
		if row.emailKey == key && id != exceptID {
			return true
		}
	}
	return false
}

func (r users) Create(ctx context.Context, in store.NewUser) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := normalizeEmail(in.Email)
	if r.emailTaken(key, "") {
		return nil, store.ErrDuplicate
	}
	if _, ok := r.s.roles[in.RoleID]; !ok {
		return nil, store.ErrNotFound
	}

	now := r.s.now()
	row := &userRow{
		User: store.User{
			ID:            newID(),
			Email:         strings.TrimSpace(in.Email),
			PasswordHash:  in.PasswordHash,
			Name:          in.Name,
			EmailVerified: in.EmailVerified,
			RoleID:        in.RoleID,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		emailKey: key,
	}
	if in.EmailVerified {
		row.EmailVerifiedAt = &now
	}
	r.s.users[row.ID] = row
	u := r.joined(row)
	return &u, nil
}

func (r users) mutate(id string, fn func(row *userRow) error) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := fn(row); err != nil {
		return nil, err
	}
	row.UpdatedAt = r.s.now()
	u := r.joined(row)
	return &u, nil
}

func (r users) Update(ctx context.Context, id string, upd store.UserUpdate) (*store.User, error) {
	return r.mutate(id, func(row *userRow) error {
		if upd.Email != nil {
			key := normalizeEmail(*upd.Email)
			if r.emailTaken(key, id) {
				return store.ErrDuplicate
			}
			row.Email = strings.TrimSpace(*upd.Email)
			row.emailKey = key
		}
		if upd.Name != nil {
			row.Name = *upd.Name
		}
		return nil
	})
}

func (r users) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.mutate(id, func(row *userRow) error {
		row.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (r users) SetRole(ctx context.Context, id, roleID string) (*store.User, error) {
	return r.mutate(id, func(row *userRow) error {
		if _, ok := r.s.roles[roleID]; !ok {
			return store.ErrNotFound
		}
		row.RoleID = roleID
		return nil
	})
}

func (r users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	_, err := r.mutate(id, func(row *userRow) error {
		row.EmailVerified = true
		row.EmailVerifiedAt = &at
		return nil
	})
	return err
}

func (r users) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for k, t := range r.s.refreshTokens {
		if t.UserID == id {
			delete(r.s.refreshTokens, k)
		}
	}
	for k, v := range r.s.verifications {
		if v.UserID == id {
			delete(r.s.verifications, k)
		}
	}
	for k, si := range r.s.socials {
		if si.UserID == id {
			delete(r.s.socials, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// roles

type roles struct{ s *Store }

func (r roles) FindAll(ctx context.Context) ([]store.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]store.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r roles) FindByID(ctx context.Context, id string) (*store.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *role
	return &out, nil
}

func (r roles) FindByName(ctx context.Context, name string) (*store.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			out := *role
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r roles) nameTaken(name, exceptID string) bool {
	for id, role := range r.s.roles {
		if role.Name == name && id != exceptID {
			return true
		}
	}
	return false
}

func (r roles) Create(ctx context.Context, name, description string) (*store.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.nameTaken(name, "") {
		return nil, store.ErrDuplicate
	}
	now := r.s.now()
	role := &store.Role{ID: newID(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	r.s.roles[role.ID] = role
	out := *role
	return &out, nil
}

func (r roles) Update(ctx context.Context, id, name, description string) (*store.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.nameTaken(name, id) {
		return nil, store.ErrDuplicate
	}
	role.Name = name
	role.Description = description
	role.UpdatedAt = r.s.now()
	out := *role
	return &out, nil
}

func (r roles) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return store.ErrNotFound
	}
	for _, u := range r.s.users {
		if u.RoleID == id {
			return store.ErrRoleInUse
		}
	}
	delete(r.s.roles, id)
	return nil
}

func (r roles) CountUsers(ctx context.Context, id string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, u := range r.s.users {
		if u.RoleID == id {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// refresh tokens

type refreshTokens struct{ s *Store }

func (r refreshTokens) Create(ctx context.Context, userID string, expiresAt time.Time) (*store.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return nil, store.ErrNotFound
	}
	id := newID()
	t := &store.RefreshToken{
		ID:        id,
		Token:     "pending:" + id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.s.now(),
	}
	r.s.refreshTokens[id] = t
	out := *t
	return &out, nil
}

func (r refreshTokens) Stamp(ctx context.Context, id, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refreshTokens[id]
	if !ok {
		return store.ErrNotFound
	}
	for otherID, other := range r.s.refreshTokens {
		if other.Token == token && otherID != id {
			return store.ErrDuplicate
		}
	}
	t.Token = token
	return nil
}

func (r refreshTokens) FindByID(ctx context.Context, id string) (*store.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.refreshTokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r refreshTokens) FindByToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.refreshTokens {
		if t.Token == token {
			out := *t
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r refreshTokens) Revoke(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refreshTokens[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	return true, nil
}

func (r refreshTokens) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.refreshTokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// verification tokens

type verifications struct{ s *Store }

func copyVerification(v *store.VerificationToken) store.VerificationToken {
	out := *v
	if v.UsedAt != nil {
		at := *v.UsedAt
		out.UsedAt = &at
	}
	return out
}

func (r verifications) Create(ctx context.Context, in store.VerificationToken) (*store.VerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[in.UserID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, v := range r.s.verifications {
		if v.Token == in.Token {
			return nil, store.ErrDuplicate
		}
	}
	in.ID = newID()
	in.UsedAt = nil
	in.CreatedAt = r.s.now()
	r.s.verifications[in.ID] = &in
	out := copyVerification(&in)
	return &out, nil
}

func (r verifications) FindByToken(ctx context.Context, token string) (*store.VerificationToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, v := range r.s.verifications {
		if v.Token == token {
			out := copyVerification(v)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r verifications) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.verifications[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if v.UsedAt != nil {
		return false, nil
	}
	v.UsedAt = &at
	return true, nil
}

func (r verifications) CountSince(ctx context.Context, userID string, typ store.VerificationType, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, v := range r.s.verifications {
		if v.UserID == userID && v.Type == typ && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r verifications) LatestByUser(ctx context.Context, userID string, limit int) ([]store.VerificationToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]store.VerificationToken, 0)
	for _, v := range r.s.verifications {
		if v.UserID == userID {
			out = append(out, copyVerification(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, store.Page{Limit: limit}), nil
}

// ---------------------------------------------------------------------------
// social identities

type socials struct{ s *Store }

func (r socials) FindByProvider(ctx context.Context, provider, providerID string) (*store.SocialIdentity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, si := range r.s.socials {
		if si.Provider == provider && si.ProviderID == providerID {
			out := *si
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r socials) Create(ctx context.Context, in store.SocialIdentity) (*store.SocialIdentity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[in.UserID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, si := range r.s.socials {
		if si.Provider == in.Provider && si.ProviderID == in.ProviderID {
			return nil, store.ErrDuplicate
		}
	}
	now := r.s.now()
	in.ID = newID()
	in.CreatedAt = now
	in.UpdatedAt = now
	r.s.socials[in.ID] = &in
	out := in
	return &out, nil
}

func (r socials) ListByUser(ctx context.Context, userID string) ([]store.SocialIdentity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]store.SocialIdentity, 0)
	for _, si := range r.s.socials {
		if si.UserID == userID {
			out = append(out, *si)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r socials) Delete(ctx context.Context, userID, provider string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, si := range r.s.socials {
		if si.UserID == userID && si.Provider == provider {
			delete(r.s.socials, id)
			return nil
		}
	}
	return store.ErrNotFound
}

var _ store.Store = (*Store)(nil)
