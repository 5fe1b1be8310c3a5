// Package catalog implements the durable metadata of a database: the
// per-database catalog.json naming every table, and the per-table
// manifest.json carrying schema and shard list. Both are JSON documents with
// sorted keys, 2-space indent and a trailing newline, written with the
// write-temp-then-rename discipline so readers never observe a torn write.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snowfort-db/snowfort/internal/fsutil"
)

const (
	// CatalogFileName is the catalog document at the database root.
	CatalogFileName = "catalog.json"
	// ManifestFileName is the per-table manifest document.
	ManifestFileName = "manifest.json"

	catalogVersion = 1
)

var (
	// ErrTableExists is returned by CreateTable for a duplicate name.
	ErrTableExists = errors.New("table already exists in catalog")
	// ErrTableNotFound is returned when a named table is absent.
	ErrTableNotFound = errors.New("table not found in catalog")
)

// TableEntry is the catalog's record for one table.
type TableEntry struct {
	TableID string `json:"table_id"`
}

// Catalog is the per-database table registry. Fields are declared in
// sorted-key order so marshaled JSON is stable for diffs.
type Catalog struct {
	CreatedAt string                `json:"created_at"`
	Tables    map[string]TableEntry `json:"tables"`
	Version   int                   `json:"version"`
}

// NewCatalog returns an empty catalog stamped with the current UTC time.
func NewCatalog() *Catalog {
	return &Catalog{
		CreatedAt: nowUTC(),
		Tables:    map[string]TableEntry{},
		Version:   catalogVersion,
	}
}

// CatalogPath returns the catalog document path under dbPath.
func CatalogPath(dbPath string) string {
	return filepath.Join(dbPath, CatalogFileName)
}

// LoadCatalog reads the catalog at dbPath. A missing file yields an empty
// catalog: a directory with no catalog.json is a fresh database.
func LoadCatalog(dbPath string) (*Catalog, error) {
	data, err := os.ReadFile(CatalogPath(dbPath)) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return NewCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if c.Version != catalogVersion {
		return nil, fmt.Errorf("catalog version %d, want %d", c.Version, catalogVersion)
	}
	if c.Tables == nil {
		c.Tables = map[string]TableEntry{}
	}
	return &c, nil
}

// Save writes the catalog atomically under dbPath.
func (c *Catalog) Save(dbPath string) error {
	data, err := marshalDoc(c)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := fsutil.WriteFileAtomic(CatalogPath(dbPath), data, 0o644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// CreateTable records a new table. The manifest must already be on disk
// before the catalog names the table.
func (c *Catalog) CreateTable(name, tableID string) error {
	if _, ok := c.Tables[name]; ok {
		return fmt.Errorf("table %q: %w", name, ErrTableExists)
	}
	c.Tables[name] = TableEntry{TableID: tableID}
	return nil
}

// GetTable returns the entry for name, or ErrTableNotFound.
func (c *Catalog) GetTable(name string) (TableEntry, error) {
	entry, ok := c.Tables[name]
	if !ok {
		return TableEntry{}, fmt.Errorf("table %q: %w", name, ErrTableNotFound)
	}
	return entry, nil
}

// HasTable reports whether name is cataloged.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

// DropTable removes name from the catalog. A missing table is an error
// unless existOK is set.
func (c *Catalog) DropTable(name string, existOK bool) error {
	if _, ok := c.Tables[name]; !ok {
		if existOK {
			return nil
		}
		return fmt.Errorf("table %q: %w", name, ErrTableNotFound)
	}
	delete(c.Tables, name)
	return nil
}

// marshalDoc renders a document as indented JSON with a trailing newline.
// Struct fields are declared in sorted-key order and map keys are sorted by
// encoding/json, so the byte layout is deterministic.
func marshalDoc(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func nowUTC() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}
