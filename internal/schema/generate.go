package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// MigrationsDir is where generated migrations live, relative to the project root.
const MigrationsDir = "db/migrations"

var (
	migrationFile = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)
	nameCleaner   = regexp.MustCompile(`[^a-z0-9]+`)
	createTable   = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([a-z_][a-z0-9_]*)"?`)
)

// ErrNoNewTables is returned by Generate when earlier migrations already
// create every requested table.
var ErrNoNewTables = errors.New("every table already has a migration")

// Migration is a generated up/down pair.
type Migration struct {
	Version  int
	UpPath   string
	DownPath string
}

// Generate writes the next numbered migration pair for tables into dir.
func Generate(dir, name string, tables []Table) (Migration, error) {
	slug := strings.Trim(nameCleaner.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return Migration{}, errors.New("migration name is required")
	}
	if len(tables) == 0 {
		return Migration{}, errors.New("no tables to migrate")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Migration{}, fmt.Errorf("create migrations dir: %w", err)
	}
	last, err := LatestVersion(dir)
	if err != nil {
		return Migration{}, err
	}

	// Only tables no earlier migration creates go into the pair, so rolling
	// this version back never drops tables owned by an older one.
	existing, err := CreatedTables(dir)
	if err != nil {
		return Migration{}, err
	}
	var fresh []Table
	for _, t := range tables {
		if !existing[t.Name] {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return Migration{}, ErrNoNewTables
	}
	tables = fresh

	m := Migration{Version: last + 1}
	base := fmt.Sprintf("%06d_%s", m.Version, slug)
	m.UpPath = filepath.Join(dir, base+".up.sql")
	m.DownPath = filepath.Join(dir, base+".down.sql")

	if err := os.WriteFile(m.UpPath, []byte(UpSQL(tables)), 0o644); err != nil {
		return Migration{}, fmt.Errorf("write %s: %w", m.UpPath, err)
	}
	if err := os.WriteFile(m.DownPath, []byte(DownSQL(tables)), 0o644); err != nil {
		return Migration{}, fmt.Errorf("write %s: %w", m.DownPath, err)
	}
	return m, nil
}

// LatestVersion returns the highest migration number in dir, 0 when empty.
func LatestVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read migrations dir: %w", err)
	}

	latest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := migrationFile.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

// CreatedTables returns the tables created by the up migrations in dir.
func CreatedTables(dir string) (map[string]bool, error) {
	created := map[string]bool{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return created, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	for _, e := range entries {
		match := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil || match[2] != "up" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		for _, m := range createTable.FindAllStringSubmatch(string(data), -1) {
			created[strings.ToLower(m[1])] = true
		}
	}
	return created, nil
}
