package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/store"
)

// ListRoles returns every role.
func (e *Engine) ListRoles(ctx context.Context) ([]store.Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	roles, err := e.roles.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// GetRole returns the role with id.
func (e *Engine) GetRole(ctx context.Context, id string) (*store.Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	r, err := e.roles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return r, nil
}

// CreateRole adds a custom role. Names are stored upper-case.
func (e *Engine) CreateRole(ctx context.Context, in RoleInput) (*store.Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	name := strings.ToUpper(strings.TrimSpace(in.Name))
	if name == "" {
		return nil, ErrRoleRequired
	}
	r, err := e.roles.Create(ctx, name, strings.TrimSpace(in.Description))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	return r, nil
}

// UpdateRole describes the updaterole operation and its observable behavior.
//
// UpdateRole renames or redescribes a custom role. The reserved roles are
// immutable. Users holding the role have their cached principals dropped so
// the new name is seen on the next request.
func (e *Engine) UpdateRole(ctx context.Context, id string, in RoleInput) (*store.Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	current, err := e.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if store.IsDefaultRole(current.Name) {
		return nil, ErrDefaultRoleModify
	}
	name := strings.ToUpper(strings.TrimSpace(in.Name))
	if name == "" {
		name = current.Name
	}
	if store.IsDefaultRole(name) {
		return nil, ErrRoleExists
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = current.Description
	}

	r, err := e.roles.Update(ctx, id, name, desc)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrRoleExists
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	if r.Name != current.Name {
		e.evictRoleHolders(id)
	}
	return r, nil
}

// evictRoleHolders drops the cached principals of every holder of roleID in
// the background.
func (e *Engine) evictRoleHolders(roleID string) {
	e.background.Go("role:evict-principals", func(ctx context.Context) error {
		users, err := e.store.Users().FindByRoleID(ctx, roleID, store.All)
		if err != nil {
			return err
		}
		for _, u := range users {
			e.tokens.EvictUser(ctx, u.ID)
		}
		return nil
	})
}

// DeleteRole removes a custom role that no user holds.
func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	current, err := e.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if store.IsDefaultRole(current.Name) {
		return ErrDefaultRoleDelete
	}
	n, err := e.roles.CountUsers(ctx, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if n > 0 {
		return roleInUse(n)
	}

	if err := e.roles.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrRoleInUse):
			n, _ := e.roles.CountUsers(ctx, id)
			return roleInUse(n)
		case errors.Is(err, store.ErrNotFound):
			return ErrRoleNotFound
		}
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// RoleUsers lists the users holding the role with id.
func (e *Engine) RoleUsers(ctx context.Context, id string) ([]UserView, error) {
	if _, err := e.GetRole(ctx, id); err != nil {
		return nil, err
	}
	return e.UsersByRole(ctx, id)
}

// EnsureDefaultRoles describes the ensuredefaultroles operation and its observable behavior.
//
// EnsureDefaultRoles creates any reserved role that is missing. It is safe to
// run from several instances at once.
func (e *Engine) EnsureDefaultRoles(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	for _, def := range store.DefaultRoles {
		_, err := e.roles.FindByName(ctx, def.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("ensure role %s: %w", def.Name, err)
		}
		if _, err := e.roles.Create(ctx, def.Name, def.Description); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("ensure role %s: %w", def.Name, err)
		}
		e.log.Info("default role created", zap.String("role", def.Name))
	}
	return nil
}
