package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Get(ctx, KeyUser); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, KeyUser, `{"id":"u1"}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, err := store.Get(ctx, KeyUser)
	if err != nil || got != `{"id":"u1"}` {
		t.Errorf("Get() = %q, %v", got, err)
	}

	if err := store.Delete(ctx, KeyUser); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, KeyUser); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestMemory_SetMulti(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	pairs := map[string]string{
		KeyAccessToken:  "a",
		KeyRefreshToken: "r",
	}
	if err := store.SetMulti(ctx, pairs); err != nil {
		t.Fatalf("SetMulti() error: %v", err)
	}
	for key, want := range pairs {
		if got, err := store.Get(ctx, key); err != nil || got != want {
			t.Errorf("Get(%s) = %q, %v; want %q", key, got, err, want)
		}
	}
}

func TestMemory_DeleteMany(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for _, key := range SessionKeys {
		if err := store.Set(ctx, key, "x"); err != nil {
			t.Fatalf("Set(%s) error: %v", key, err)
		}
	}
	if err := store.Set(ctx, KeyFirstLaunch, "false"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if err := store.Delete(ctx, SessionKeys...); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	for _, key := range SessionKeys {
		if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%s) after delete = %v, want ErrNotFound", key, err)
		}
	}
	if _, err := store.Get(ctx, KeyFirstLaunch); err != nil {
		t.Errorf("unrelated key should survive: %v", err)
	}
}

func TestSessionKeys_ExcludeDevicePreferences(t *testing.T) {
	for _, key := range SessionKeys {
		if key == KeyFirstLaunch || key == KeyBiometric {
			t.Errorf("SessionKeys must not include device preference %s", key)
		}
	}
}
