package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser is the admin path to a new VIEWER account. No session is issued
// and no verification email is sent.
func (e *Engine) CreateUser(ctx context.Context, in CreateUserInput) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role, err := e.defaultRole(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: hash password: %w", err)
	}

	u, err := queue.Do(ctx, e.writes, "user:create", func(ctx context.Context) (*store.User, error) {
		return e.users.Create(ctx, store.NewUser{
			Email:        email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(in.Name),
			RoleID:       role.ID,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	view := NewUserView(u)
	return &view, nil
}

// ListUsers returns one page of users, newest first. page is 1-based.
func (e *Engine) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	page, limit = clampPage(page, limit)
	return e.userPage(ctx, page, limit,
		func(ctx context.Context, p store.Page) ([]store.User, error) { return e.users.FindAll(ctx, p) },
		e.users.Count,
	)
}

// SearchUsers matches q against email and name, case-insensitively.
func (e *Engine) SearchUsers(ctx context.Context, q string, page, limit int) (*UserPage, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	page, limit = clampPage(page, limit)
	q = strings.TrimSpace(q)
	return e.userPage(ctx, page, limit,
		func(ctx context.Context, p store.Page) ([]store.User, error) { return e.users.Search(ctx, q, p) },
		func(ctx context.Context) (int, error) { return e.users.CountSearch(ctx, q) },
	)
}

// userPage loads the rows and the total concurrently.
func (e *Engine) userPage(
	ctx context.Context,
	page, limit int,
	list func(context.Context, store.Page) ([]store.User, error),
	count func(context.Context) (int, error),
) (*UserPage, error) {
	var (
		users []store.User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = list(gctx, store.Page{Limit: limit, Offset: (page - 1) * limit})
		return err
	})
	g.Go(func() (err error) {
		total, err = count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &UserPage{
		List: userViews(users),
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// GetUser describes the getuser operation and its observable behavior.
//
// GetUser returns the user with its linked providers.
func (e *Engine) GetUser(ctx context.Context, id string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.user(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewUserView(u)
	socials, err := e.UserSocials(ctx, id)
	if err != nil {
		e.log.Warn("get user: socials unavailable", zap.String("user_id", id), zap.Error(err))
	} else if len(socials) > 0 {
		view.Socials = socials
	}
	return &view, nil
}

// GetProfile is GetUser for the caller.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*UserView, error) {
	return e.GetUser(ctx, userID)
}

func (e *Engine) user(ctx context.Context, id string) (*store.User, error) {
	u, err := e.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// UpdateUser describes the updateuser operation and its observable behavior.
//
// UpdateUser changes name and email. An email held by another account fails
// with ErrEmailInUse. The user's cached access tokens are dropped so the next
// request sees the change.
func (e *Engine) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	upd := store.UserUpdate{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		upd.Name = &name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		other, err := e.users.FindByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return nil, ErrEmailInUse
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("update user: lookup email: %w", err)
		}
		upd.Email = &email
	}

	u, err := e.users.Update(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	e.tokens.EvictUser(ctx, id)
	view := NewUserView(u)
	return &view, nil
}

// UpdateProfile is UpdateUser for the caller.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, in UpdateUserInput) (*UserView, error) {
	return e.UpdateUser(ctx, userID, in)
}

// DeleteUser describes the deleteuser operation and its observable behavior.
//
// DeleteUser removes the account and everything that references it. Cached
// access tokens of the user stop authenticating immediately.
func (e *Engine) DeleteUser(ctx context.Context, id string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.users.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	e.tokens.EvictUser(ctx, id)
	e.log.Info("user deleted", zap.String("user_id", id))
	return nil
}

// ChangeUserRole assigns the role named roleName to the user. Access tokens
// already issued keep their role claim, but cached principals are dropped so
// authorization sees the new role.
func (e *Engine) ChangeUserRole(ctx context.Context, id, roleName string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, ErrRoleRequired
	}
	if _, err := e.user(ctx, id); err != nil {
		return nil, err
	}
	role, err := e.roles.FindByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, roleNotFound(roleName)
		}
		return nil, fmt.Errorf("change role: %w", err)
	}

	u, err := e.users.SetRole(ctx, id, role.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("change role: %w", err)
	}
	e.tokens.EvictUser(ctx, id)
	view := NewUserView(u)
	return &view, nil
}

// UsersByRole lists every user holding roleID.
func (e *Engine) UsersByRole(ctx context.Context, roleID string) ([]UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	users, err := e.users.FindByRoleID(ctx, roleID, store.All)
	if err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}
	return userViews(users), nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword replaces the caller's password after checking the current
// one, then revokes every session of the user.
func (e *Engine) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if e == nil {
		return ErrEngineNotReady
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return ErrNoPassword
	}
	ok, err := e.hasher.Verify(in.CurrentPassword, u.PasswordHash)
	if err != nil {
		e.log.Error("stored password hash unreadable", zap.String("user_id", u.ID), zap.Error(err))
	}
	if !ok {
		e.metrics.Inc(MetricPasswordChangeInvalidCurrent)
		return ErrCurrentPassword
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}

	if err := e.setPassword(ctx, userID, in.NewPassword); err != nil {
		return err
	}
	e.metrics.Inc(MetricPasswordChangeSuccess)
	return nil
}

// setPassword hashes and stores pw, then revokes every session of the user.
func (e *Engine) setPassword(ctx context.Context, userID, pw string) error {
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("set password: hash: %w", err)
	}
	if err := e.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("set password: %w", err)
	}
	return e.revokeSessions(ctx, userID)
}
