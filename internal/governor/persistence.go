package governor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// persistedTable is the on-disk shape of one profile's ThermalTable:
// max_cap_khz plus its ordered levels.
type persistedTable struct {
	MaxCapKHz int     `json:"max_cap_khz"`
	Levels    []Level `json:"levels"`
}

// persistedDocument is the full snapshot file: one persistedTable per
// profile, keyed by profile name.
type persistedDocument struct {
	PowerSaver  persistedTable `json:"power_saver"`
	Balanced    persistedTable `json:"balanced"`
	Performance persistedTable `json:"performance"`
}

// Store persists and restores the three profiles' thermal tables as one
// JSON document, written atomically via temp-file-then-rename.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore constructs a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the thermal table for every profile. A missing or corrupt
// file is not an error: it yields the built-in defaults for each profile.
func (s *Store) Load() map[Profile]ThermalTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := defaultTables()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}

	var doc persistedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return out
	}

	apply := func(p Profile, pt persistedTable) {
		if len(pt.Levels) == 0 {
			return // profile absent from the snapshot, keep the default
		}
		t := out[p]
		t.MaxCapKHz = pt.MaxCapKHz
		t.Levels = make([]Level, len(pt.Levels))
		copy(t.Levels, pt.Levels)
		t.EnforceInvariants()
		out[p] = t
	}
	apply(ProfilePowerSaver, doc.PowerSaver)
	apply(ProfileBalanced, doc.Balanced)
	apply(ProfilePerformance, doc.Performance)

	return out
}

func defaultTables() map[Profile]ThermalTable {
	out := make(map[Profile]ThermalTable, len(AllProfiles()))
	for _, p := range AllProfiles() {
		out[p] = DefaultTable(p)
	}
	return out
}

// Save writes table for profile into the on-disk document, leaving the
// other two profiles' tables as they were last saved (or default, if this
// is the first save). It writes a temp file and renames it into place so a
// crash mid-write never leaves a corrupt snapshot.
func (s *Store) Save(profile Profile, table ThermalTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readDocLocked()
	pt := persistedTable{MaxCapKHz: table.MaxCapKHz, Levels: table.Levels}
	switch profile {
	case ProfilePowerSaver:
		doc.PowerSaver = pt
	case ProfileBalanced:
		doc.Balanced = pt
	case ProfilePerformance:
		doc.Performance = pt
	}

	// The snapshot always carries all three profiles; fill any the document
	// has never seen with their built-in defaults.
	fill := func(pt *persistedTable, p Profile) {
		if len(pt.Levels) == 0 {
			d := DefaultTable(p)
			*pt = persistedTable{MaxCapKHz: d.MaxCapKHz, Levels: d.Levels}
		}
	}
	fill(&doc.PowerSaver, ProfilePowerSaver)
	fill(&doc.Balanced, ProfileBalanced)
	fill(&doc.Performance, ProfilePerformance)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return E("Store.Save", ErrCodePersistence, "marshaling snapshot", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".thermgovd-snapshot-*.tmp")
	if err != nil {
		return E("Store.Save", ErrCodePersistence, "creating temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return E("Store.Save", ErrCodePersistence, "writing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return E("Store.Save", ErrCodePersistence, "closing temp file", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return E("Store.Save", ErrCodePersistence, "renaming snapshot into place", err)
	}

	return nil
}

// readDocLocked reads the current on-disk document, or a zero-valued one if
// absent or corrupt. Callers must hold s.mu.
func (s *Store) readDocLocked() persistedDocument {
	var doc persistedDocument
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	_ = json.Unmarshal(data, &doc)
	return doc
}
