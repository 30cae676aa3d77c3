package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if got := len(c.Badges()); got != 9 {
		t.Errorf("badges = %d, want 9", got)
	}
	if got := len(c.Achievements()); got != 4 {
		t.Errorf("achievements = %d, want 4", got)
	}
	// Entries without an id get a slug of their name.
	b, ok := c.Badge("xp-explorer")
	if !ok || b.Name != "XP Explorer" {
		t.Errorf("Badge(xp-explorer) = %+v, %v", b, ok)
	}
	a, ok := c.Achievement(PerfectQuizAchievementID)
	if !ok || a.XPReward != 250 || a.CoinReward != 50 {
		t.Errorf("perfect quiz achievement = %+v, %v", a, ok)
	}
	if _, ok := c.Badge("missing"); ok {
		t.Error("unexpected badge")
	}
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate badge", "badges:\n  - {id: a, name: A}\n  - {id: a, name: B}\n"},
		{"slug collision", "badges:\n  - {name: Star Pupil}\n  - {id: star-pupil, name: Other}\n"},
		{"nameless badge", "badges:\n  - {description: nothing}\n"},
		{"duplicate achievement", "achievements:\n  - {id: x, title: X}\n  - {id: x, title: Y}\n"},
		{"negative reward", "achievements:\n  - {id: x, title: X, xp_reward: -5}\n"},
		{"not yaml", "badges: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.yaml)); !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestCatalogHolderReplace(t *testing.T) {
	h := NewCatalogHolder(DefaultCatalog())
	next, err := ParseCatalog([]byte("badges:\n  - {id: only, name: Only}\n"))
	if err != nil {
		t.Fatal(err)
	}
	h.Replace(next)
	if len(h.Badges()) != 1 || len(h.Achievements()) != 0 {
		t.Errorf("holder = %d badges / %d achievements", len(h.Badges()), len(h.Achievements()))
	}
	if _, ok := h.Badge("only"); !ok {
		t.Error("replaced catalog not visible")
	}
}

type fakeObjectStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjectStore) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (f *fakeObjectStore) PutObject(_ context.Context, key string, body []byte, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[key] = body
	return "https://r2.test/" + key, nil
}

func TestLoadCatalogSources(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("badges:\n  - {id: file-badge, name: File}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := &fakeObjectStore{objects: map[string][]byte{
		"catalog.yaml": []byte("achievements:\n  - {title: Remote Win}\n"),
	}}

	fromFile, err := LoadCatalog(ctx, FileCatalogSource{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fromFile.Badge("file-badge"); !ok {
		t.Error("file catalog missing badge")
	}

	fromR2, err := LoadCatalog(ctx, R2CatalogSource{Store: store, Key: "catalog.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fromR2.Achievement("remote-win"); !ok {
		t.Error("r2 catalog missing achievement")
	}

	if _, err := LoadCatalog(ctx, R2CatalogSource{Store: store, Key: "missing"}); err == nil {
		t.Error("expected error for a missing object")
	}
	if _, err := LoadCatalog(ctx, EmbeddedCatalogSource{}); err != nil {
		t.Errorf("embedded: %v", err)
	}
}

func TestPublishCatalog(t *testing.T) {
	ctx := context.Background()
	store := &fakeObjectStore{objects: map[string][]byte{}}
	h := NewCatalogHolder(DefaultCatalog())

	if _, err := PublishCatalog(ctx, store, "k", []byte("badges:\n  - {id: a, name: A}\n  - {id: a, name: A}\n"), h); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("invalid publish err = %v", err)
	}
	if len(store.objects) != 0 || len(h.Badges()) != 9 {
		t.Error("invalid catalog was stored or applied")
	}

	store.putErr = errors.New("bucket gone")
	if _, err := PublishCatalog(ctx, store, "k", []byte("badges:\n  - {id: a, name: A}\n"), h); err == nil {
		t.Fatal("expected upload error")
	}
	if len(h.Badges()) != 9 {
		t.Error("catalog applied although the upload failed")
	}

	store.putErr = nil
	if _, err := PublishCatalog(ctx, store, "k", []byte("badges:\n  - {id: a, name: A}\n"), h); err != nil {
		t.Fatal(err)
	}
	if len(h.Badges()) != 1 || store.objects["k"] == nil {
		t.Error("published catalog not stored and applied")
	}
}
