package entitycache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

const (
	userIDKey          = "user:id:"
	userEmailKey       = "user:email:"
	userListPrefix     = "user:list:"
	userCountKey       = "user:count"
	userSearchPrefix   = "user:search:"
	userSearchCountKey = "user:search-count:"
	userRolePrefix     = "user:role:"
)

// userListPrefixes are the entries whose membership or order a user write can
// change.
var userListPrefixes = []string{userListPrefix, userSearchPrefix, userSearchCountKey, userRolePrefix}

// Users is a cache-first store.Users.
type Users struct {
	inner store.Users
	cache cache.Store
	cfg   Config
	log   *zap.Logger
	inv   invalidator
}

// NewUsers decorates inner. bg runs the delayed invalidation pass and may be nil.
func NewUsers(inner store.Users, c cache.Store, bg *queue.Background, cfg Config, log *zap.Logger) *Users {
	cfg = withDefaults(cfg)
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("entitycache.users")
	return &Users{
		inner: inner,
		cache: c,
		cfg:   cfg,
		log:   log,
		inv:   invalidator{cache: c, bg: bg, log: log, delay: cfg.SecondPassDelay},
	}
}

func (u *Users) FindByID(ctx context.Context, id string) (*store.User, error) {
	return read(ctx, u.cache, u.log, userIDKey+id, u.cfg.DetailTTL, func() (*store.User, error) {
		return u.inner.FindByID(ctx, id)
	})
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return read(ctx, u.cache, u.log, userEmailKey+normalize(email), u.cfg.DetailTTL, func() (*store.User, error) {
		return u.inner.FindByEmail(ctx, email)
	})
}

func (u *Users) FindAll(ctx context.Context, page store.Page) ([]store.User, error) {
	return read(ctx, u.cache, u.log, userListPrefix+pageKey(page.Limit, page.Offset), u.cfg.ListTTL, func() ([]store.User, error) {
		return u.inner.FindAll(ctx, page)
	})
}

func (u *Users) Count(ctx context.Context) (int, error) {
	return read(ctx, u.cache, u.log, userCountKey, u.cfg.ListTTL, func() (int, error) {
		return u.inner.Count(ctx)
	})
}

func (u *Users) Search(ctx context.Context, query string, page store.Page) ([]store.User, error) {
	key := userSearchPrefix + normalize(query) + ":" + pageKey(page.Limit, page.Offset)
	return read(ctx, u.cache, u.log, key, u.cfg.ListTTL, func() ([]store.User, error) {
		return u.inner.Search(ctx, query, page)
	})
}

func (u *Users) CountSearch(ctx context.Context, query string) (int, error) {
	return read(ctx, u.cache, u.log, userSearchCountKey+normalize(query), u.cfg.ListTTL, func() (int, error) {
		return u.inner.CountSearch(ctx, query)
	})
}

func (u *Users) FindByRoleID(ctx context.Context, roleID string, page store.Page) ([]store.User, error) {
	key := userRolePrefix + roleID + ":" + pageKey(page.Limit, page.Offset)
	return read(ctx, u.cache, u.log, key, u.cfg.ListTTL, func() ([]store.User, error) {
		return u.inner.FindByRoleID(ctx, roleID, page)
	})
}

func (u *Users) Create(ctx context.Context, in store.NewUser) (*store.User, error) {
	created, err := u.inner.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	u.evict(ctx, created)
	return created, nil
}

func (u *Users) Update(ctx context.Context, id string, upd store.UserUpdate) (*store.User, error) {
	before, _ := u.inner.FindByID(ctx, id)
	updated, err := u.inner.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	u.evict(ctx, before, updated)
	return updated, nil
}

func (u *Users) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if err := u.inner.UpdatePassword(ctx, id, passwordHash); err != nil {
		return err
	}
	u.evictID(ctx, id)
	return nil
}

func (u *Users) SetRole(ctx context.Context, id, roleID string) (*store.User, error) {
	before, _ := u.inner.FindByID(ctx, id)
	updated, err := u.inner.SetRole(ctx, id, roleID)
	if err != nil {
		return nil, err
	}
	u.evict(ctx, before, updated)
	return updated, nil
}

func (u *Users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	if err := u.inner.MarkEmailVerified(ctx, id, at); err != nil {
		return err
	}
	u.evictID(ctx, id)
	return nil
}

func (u *Users) Delete(ctx context.Context, id string) error {
	before, _ := u.inner.FindByID(ctx, id)
	if err := u.inner.Delete(ctx, id); err != nil {
		return err
	}
	if before == nil {
		before = &store.User{ID: id}
	}
	u.evict(ctx, before)
	return nil
}

// Invalidate drops every cached entry that mentions id.
func (u *Users) Invalidate(ctx context.Context, id string) {
	u.evictID(ctx, id)
}

// InvalidateAll drops every cached user entry. Role renames use it since the
// role is embedded in each user.
func (u *Users) InvalidateAll(ctx context.Context) {
	u.inv.invalidate(ctx, nil, []string{"user:"})
}

func (u *Users) evictID(ctx context.Context, id string) {
	current, err := u.inner.FindByID(ctx, id)
	if err != nil {
		current = &store.User{ID: id}
	}
	u.evict(ctx, current)
}

func (u *Users) evict(ctx context.Context, users ...*store.User) {
	keys := []string{userCountKey}
	for _, usr := range users {
		if usr == nil {
			continue
		}
		keys = append(keys, userIDKey+usr.ID)
		if usr.Email != "" {
			keys = append(keys, userEmailKey+normalize(usr.Email))
		}
	}
	u.inv.invalidate(ctx, keys, userListPrefixes)
}

var _ store.Users = (*Users)(nil)
