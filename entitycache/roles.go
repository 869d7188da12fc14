package entitycache

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

const (
	roleIDKey   = "role:id:"
	roleNameKey = "role:name:"
	roleListKey = "role:list"
)

// Roles is a cache-first store.Roles. Role writes also drop cached users,
// which embed their role.
type Roles struct {
	inner store.Roles
	users *Users
	cache cache.Store
	cfg   Config
	log   *zap.Logger
	inv   invalidator
}

// NewRoles decorates inner. users, when set, is invalidated on role writes.
func NewRoles(inner store.Roles, users *Users, c cache.Store, bg *queue.Background, cfg Config, log *zap.Logger) *Roles {
	cfg = withDefaults(cfg)
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("entitycache.roles")
	return &Roles{
		inner: inner,
		users: users,
		cache: c,
		cfg:   cfg,
		log:   log,
		inv:   invalidator{cache: c, bg: bg, log: log, delay: cfg.SecondPassDelay},
	}
}

func (r *Roles) FindAll(ctx context.Context) ([]store.Role, error) {
	return read(ctx, r.cache, r.log, roleListKey, r.cfg.ListTTL, func() ([]store.Role, error) {
		return r.inner.FindAll(ctx)
	})
}

func (r *Roles) FindByID(ctx context.Context, id string) (*store.Role, error) {
	return read(ctx, r.cache, r.log, roleIDKey+id, r.cfg.DetailTTL, func() (*store.Role, error) {
		return r.inner.FindByID(ctx, id)
	})
}

func (r *Roles) FindByName(ctx context.Context, name string) (*store.Role, error) {
	return read(ctx, r.cache, r.log, roleNameKey+name, r.cfg.DetailTTL, func() (*store.Role, error) {
		return r.inner.FindByName(ctx, name)
	})
}

func (r *Roles) Create(ctx context.Context, name, description string) (*store.Role, error) {
	created, err := r.inner.Create(ctx, name, description)
	if err != nil {
		return nil, err
	}
	r.evict(ctx, false, created)
	return created, nil
}

func (r *Roles) Update(ctx context.Context, id, name, description string) (*store.Role, error) {
	before, _ := r.inner.FindByID(ctx, id)
	updated, err := r.inner.Update(ctx, id, name, description)
	if err != nil {
		return nil, err
	}
	r.evict(ctx, true, before, updated)
	return updated, nil
}

func (r *Roles) Delete(ctx context.Context, id string) error {
	before, _ := r.inner.FindByID(ctx, id)
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	if before == nil {
		before = &store.Role{ID: id}
	}
	r.evict(ctx, true, before)
	return nil
}

// CountUsers is not cached; it guards deletes and must be exact.
func (r *Roles) CountUsers(ctx context.Context, id string) (int, error) {
	return r.inner.CountUsers(ctx, id)
}

func (r *Roles) evict(ctx context.Context, touchesUsers bool, roles ...*store.Role) {
	keys := []string{roleListKey}
	for _, role := range roles {
		if role == nil {
			continue
		}
		keys = append(keys, roleIDKey+role.ID)
		if role.Name != "" {
			keys = append(keys, roleNameKey+role.Name)
		}
	}
	r.inv.invalidate(ctx, keys, nil)
	if touchesUsers && r.users != nil {
		r.users.InvalidateAll(ctx)
	}
}

var _ store.Roles = (*Roles)(nil)
