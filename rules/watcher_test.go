package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	reg := newFileTestRegistry(t)
	catalog := NewCatalog()
	path := writeCatalogFile(t, "rules.yaml", sampleCatalog)

	if err := LoadFile(path, reg, catalog); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	w, err := NewWatcher(path, reg, catalog, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx)
	}()

	// Replace the file the way an editor save does.
	updated := sampleCatalog + `
  - id: heavy-authority
    name: Heavy for-hire authority
    category: authority
    conditions: [is_heavy, is_for_hire]
    actions: [require_authority]
    priority: 30
`
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(updated), 0o644); err != nil {
		t.Fatalf("writing updated catalog: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("replacing catalog: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for catalog.Version() < 2 {
		select {
		case <-deadline:
			t.Fatalf("catalog never reloaded, version = %d", catalog.Version())
		case <-time.After(50 * time.Millisecond):
		}
	}
	if catalog.Len() != 3 {
		t.Errorf("reloaded catalog has %d rules, want 3", catalog.Len())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on context cancel")
	}
}

func TestWatcherKeepsSnapshotOnBadReload(t *testing.T) {
	reg := newFileTestRegistry(t)
	catalog := NewCatalog()
	path := writeCatalogFile(t, "rules.yaml", sampleCatalog)

	if err := LoadFile(path, reg, catalog); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	w, err := NewWatcher(path, reg, catalog, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	if err := os.WriteFile(path, []byte("rules: [\n"), 0o644); err != nil {
		t.Fatalf("writing broken catalog: %v", err)
	}

	// Give the debounce and reload a moment, then confirm nothing changed.
	time.Sleep(500 * time.Millisecond)
	if catalog.Version() != 1 {
		t.Errorf("failed reload bumped version to %d", catalog.Version())
	}
	if catalog.Len() != 2 {
		t.Errorf("failed reload changed the snapshot: %d rules", catalog.Len())
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	reg := newFileTestRegistry(t)
	catalog := NewCatalog()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
	if err := LoadFile(path, reg, catalog); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	w, err := NewWatcher(path, reg, catalog, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing sibling file: %v", err)
	}

	time.Sleep(500 * time.Millisecond)
	if catalog.Version() != 1 {
		t.Errorf("sibling write triggered a reload, version = %d", catalog.Version())
	}
}
