// Package accesscode loads and serves the access-code table used to authorize
// gateway callers.
package accesscode

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"llm-gateway-go/internal/config"
)

// ErrNoSource is returned by Reload when neither the codes file nor the
// configured list yields a table.
var ErrNoSource = errors.New("no access-code source available")

// State describes what a loaded table means for authorization.
type State int

const (
	// Disabled means no table could be loaded; authorization is skipped.
	Disabled State = iota
	// Empty means a table was loaded but holds no codes; everyone is rejected.
	Empty
	// Populated means at least one code is accepted.
	Populated
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	}
	return "disabled"
}

// Table is an immutable code→owner mapping. A nil *Table is the disabled state.
type Table struct {
	owners map[string]string
}

// Lookup returns the owner of code.
func (t *Table) Lookup(code string) (string, bool) {
	if t == nil {
		return "", false
	}
	owner, ok := t.owners[code]
	return owner, ok
}

// Len returns the number of codes in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.owners)
}

// State returns the authorization state the table represents.
func (t *Table) State() State {
	switch {
	case t == nil:
		return Disabled
	case len(t.owners) == 0:
		return Empty
	}
	return Populated
}

// Store holds the current table and swaps it atomically on reload. Readers
// never observe a partially built table.
type Store struct {
	path    string
	allowed []string
	logger  *slog.Logger

	// mu orders reloads so swap callbacks see tables in the order they
	// were stored. Readers go through the atomic pointer only.
	mu        sync.Mutex
	table     atomic.Pointer[Table]
	reloading atomic.Bool
	onSwap    func(*Table)
}

// New creates a Store and performs the initial load. A failed initial load
// leaves the store disabled rather than returning an error.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	s := &Store{
		path:    cfg.Auth.AccessCodesFile,
		allowed: cfg.Auth.AllowedCodes,
		logger:  logger.With("component", "access_codes"),
	}
	if err := s.Reload(); err != nil {
		s.logger.Warn("authorization disabled", "err", err)
	}
	return s
}

// OnSwap registers a callback invoked after every successful swap. It must be
// called before the store is shared.
func (s *Store) OnSwap(fn func(*Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwap = fn
	fn(s.table.Load())
}

// Snapshot returns the current table; nil means authorization is disabled.
func (s *Store) Snapshot() *Table {
	return s.table.Load()
}

// Path returns the codes file the store reads.
func (s *Store) Path() string {
	return s.path
}

// Reload rebuilds the table from its sources and swaps it in. On failure the
// current table is kept.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, fileErr := s.readFile()
	if fileErr != nil {
		s.logger.Debug("access-code file unavailable", "path", s.path, "err", fileErr)
		if len(s.allowed) == 0 {
			return fmt.Errorf("%w: %w", ErrNoSource, fileErr)
		}
		// A broken (not missing) file must not shrink a loaded table down to
		// the static list.
		if !errors.Is(fileErr, fs.ErrNotExist) && s.table.Load() != nil {
			return fmt.Errorf("keeping current table: %w", fileErr)
		}
	}
	for i, code := range s.allowed {
		entries = append(entries, entry{owner: "allowed_codes[" + strconv.Itoa(i) + "]", code: code})
	}

	t := s.build(entries)
	s.table.Store(t)
	s.logger.Info("access codes loaded", "count", t.Len(), "state", t.State().String())
	if s.onSwap != nil {
		s.onSwap(t)
	}
	return nil
}

// TriggerReload starts a background reload unless one is already running.
func (s *Store) TriggerReload() {
	if !s.reloading.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.reloading.Store(false)
		if err := s.Reload(); err != nil {
			s.logger.Debug("access-code reload failed", "err", err)
		}
	}()
}

func (s *Store) readFile() ([]entry, error) {
	if s.path == "" {
		return nil, errors.New("no access-code file configured")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	entries, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return entries, nil
}

// build inverts owner→code entries into code→owner. The first owner of a code
// wins; later duplicates and blank codes are dropped with a warning.
func (s *Store) build(entries []entry) *Table {
	owners := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.code == "" {
			s.logger.Warn("invalid access code ignored", "user", e.owner)
			continue
		}
		if _, dup := owners[e.code]; dup {
			s.logger.Warn("duplicated access code ignored", "user", e.owner)
			continue
		}
		owners[e.code] = e.owner
	}
	return &Table{owners: owners}
}
