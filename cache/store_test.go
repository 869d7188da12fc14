package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test"), mr
}

func TestGetSetAndMiss(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	val, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("unexpected Get result %q ok=%v err=%v", val, ok, err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("expected key to be namespaced with prefix")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestJSONHelpers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	if err := SetJSON(ctx, s, "json", payload{ID: "a", Count: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}
	var got payload
	ok, err := GetJSON(ctx, s, "json", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON ok=%v err=%v", ok, err)
	}
	if got.ID != "a" || got.Count != 3 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSetNXIsSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		start   = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.SetNX(ctx, "nonce", []byte("1"), time.Minute)
			if err != nil {
				t.Errorf("SetNX error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one SetNX winner, got %d", winners)
	}
}

func TestDeletePrefix(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		if err := s.Set(ctx, fmt.Sprintf("user:list:%d:0", i), []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}
	_ = s.Set(ctx, "user:id:1", []byte("keep"), time.Minute)
	_ = mr.Set("other:user:list:1", "keep")

	n, err := s.DeletePrefix(ctx, "user:list:")
	if err != nil {
		t.Fatalf("DeletePrefix error: %v", err)
	}
	if n != 1200 {
		t.Fatalf("expected 1200 deletions, got %d", n)
	}
	if _, ok, _ := s.Get(ctx, "user:id:1"); !ok {
		t.Fatal("key outside prefix must survive")
	}
	if !mr.Exists("other:user:list:1") {
		t.Fatal("key outside namespace must survive")
	}
}

func TestMembersIndex(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		if err := s.AddMember(ctx, "idx", m, time.Minute); err != nil {
			t.Fatalf("AddMember error: %v", err)
		}
	}
	members, err := s.PopMembers(ctx, "idx")
	if err != nil {
		t.Fatalf("PopMembers error: %v", err)
	}
	sort.Strings(members)
	if len(members) != 3 || members[0] != "a" || members[2] != "c" {
		t.Fatalf("unexpected members %v", members)
	}
	if mr.Exists("test:idx") {
		t.Fatal("expected index set to be removed")
	}

	members, err = s.PopMembers(ctx, "idx")
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty pop, got %v err=%v", members, err)
	}
}

func TestIncrFixedWindow(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "rl", time.Minute)
		if err != nil {
			t.Fatalf("Incr error: %v", err)
		}
		if got != want {
			t.Fatalf("Incr = %d, want %d", got, want)
		}
	}
	mr.FastForward(61 * time.Second)
	if got, _ := s.Incr(ctx, "rl", time.Minute); got != 1 {
		t.Fatalf("expected window reset, got %d", got)
	}
}

func TestUnavailableIsWrapped(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := s.SetNX(context.Background(), "k", []byte("1"), time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from SetNX, got %v", err)
	}
}
