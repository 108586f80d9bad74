package accesscode

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"llm-gateway-go/internal/config"
)

func newTestStore(t *testing.T, path string, allowed ...string) *Store {
	t.Helper()
	cfg := &config.Config{Auth: config.AuthConfig{AccessCodesFile: path, AllowedCodes: allowed}}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeCodes(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestParse_KeepsDocumentOrder(t *testing.T) {
	entries, err := parse(strings.NewReader(`{"zoe":"c1","adam":"c2","mia":42}`))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	want := []entry{
		{owner: "zoe", code: "c1"},
		{owner: "adam", code: "c2"},
		{owner: "mia", code: ""}, // non-string values decode as blank codes
	}
	if !slices.Equal(entries, want) {
		t.Errorf("parse() = %+v, want %+v", entries, want)
	}
}

func TestParse_RejectsNonObject(t *testing.T) {
	for _, doc := range []string{`["a","b"]`, `"code"`, `{"a":"b"`, ``} {
		if _, err := parse(strings.NewReader(doc)); err == nil {
			t.Errorf("parse(%q) succeeded, want error", doc)
		}
	}
}

func TestNew_PopulatedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"a-123","bob":"b-456"}`)

	table := newTestStore(t, path).Snapshot()

	if table == nil {
		t.Fatal("Snapshot() = nil, want a loaded table")
	}
	if table.State() != Populated {
		t.Errorf("State() = %v, want %v", table.State(), Populated)
	}
	if owner, ok := table.Lookup("a-123"); !ok || owner != "alice" {
		t.Errorf("Lookup(a-123) = %q, %v, want alice, true", owner, ok)
	}
	if _, ok := table.Lookup("missing"); ok {
		t.Error("Lookup(missing) found an owner")
	}
}

func TestNew_DuplicateCodeKeepsFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"shared","bob":"shared","carol":""}`)

	table := newTestStore(t, path).Snapshot()

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
	if owner, _ := table.Lookup("shared"); owner != "alice" {
		t.Errorf("owner of shared = %q, want alice", owner)
	}
}

func TestNew_MissingFileIsDisabled(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "absent.json"))

	if s.Snapshot() != nil {
		t.Error("Snapshot() != nil, want disabled store")
	}
	if st := s.Snapshot().State(); st != Disabled {
		t.Errorf("State() = %v, want %v", st, Disabled)
	}
}

func TestNew_UnparsableFileIsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `not json`)

	if newTestStore(t, path).Snapshot() != nil {
		t.Error("Snapshot() != nil, want disabled store")
	}
}

func TestNew_EmptyObjectIsEmptyNotDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{}`)

	table := newTestStore(t, path).Snapshot()

	if table == nil {
		t.Fatal("Snapshot() = nil; an empty table must not read as disabled")
	}
	if table.State() != Empty {
		t.Errorf("State() = %v, want %v", table.State(), Empty)
	}
}

func TestNew_AllowedCodesWithoutFile(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "absent.json"), "k1", "k2")

	owner, ok := s.Snapshot().Lookup("k2")
	if !ok || owner != "allowed_codes[1]" {
		t.Errorf("Lookup(k2) = %q, %v, want allowed_codes[1], true", owner, ok)
	}
}

func TestReload_RecoversFromDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	s := newTestStore(t, path)
	if s.Snapshot() != nil {
		t.Fatal("store loaded before the file existed")
	}

	writeCodes(t, path, `{"alice":"a-123"}`)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, ok := s.Snapshot().Lookup("a-123"); !ok {
		t.Error("code missing after reload")
	}
}

func TestReload_BrokenFileKeepsCurrentTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"a-123"}`)
	s := newTestStore(t, path, "static")
	before := s.Snapshot()

	writeCodes(t, path, `{broken`)
	if err := s.Reload(); err == nil {
		t.Error("Reload() succeeded on a broken file")
	}
	if s.Snapshot() != before {
		t.Error("table replaced after a failed reload")
	}
}

func TestTriggerReload_Async(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	s := newTestStore(t, path)
	writeCodes(t, path, `{"alice":"a-123"}`)

	s.TriggerReload()

	ok := waitFor(t, 2*time.Second, func() bool {
		_, found := s.Snapshot().Lookup("a-123")
		return found
	})
	if !ok {
		t.Error("background reload never picked up the file")
	}
}

func TestOnSwap_ReportsCurrentAndNewTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"a-123"}`)
	s := newTestStore(t, path)

	var mu sync.Mutex
	var counts []int
	s.OnSwap(func(tbl *Table) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, tbl.Len())
	})

	writeCodes(t, path, `{"alice":"a-123","bob":"b-456"}`)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(counts, []int{1, 2}) {
		t.Errorf("swap counts = %v, want [1 2]", counts)
	}
}

func TestOnSwap_LastReportMatchesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"a-123"}`)
	s := newTestStore(t, path)

	var mu sync.Mutex
	var last *Table
	s.OnSwap(func(tbl *Table) {
		mu.Lock()
		last = tbl
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := `{"alice":"a-123"}`
			if i%2 == 0 {
				doc = `{"alice":"a-123","bob":"b-456"}`
			}
			_ = os.WriteFile(path, []byte(doc), 0o600)
			_ = s.Reload()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last != s.Snapshot() {
		t.Errorf("last reported table has %d codes, snapshot has %d", last.Len(), s.Snapshot().Len())
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access-codes.json")
	writeCodes(t, path, `{"alice":"a-123"}`)
	s := newTestStore(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeCodes(t, path, `{"alice":"a-123","bob":"b-456"}`)

	ok := waitFor(t, 3*time.Second, func() bool {
		_, found := s.Snapshot().Lookup("b-456")
		return found
	})
	if !ok {
		t.Error("watcher did not reload after the file changed")
	}
}
