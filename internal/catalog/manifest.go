package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/snowfort-db/snowfort/internal/fsutil"
)

const (
	manifestVersion = 1

	// DefaultRowsPerShard is the shard size used when a table does not
	// override it at CREATE or INSERT time.
	DefaultRowsPerShard = 100_000
)

var shardNameRe = regexp.MustCompile(`^shard-(\d+)\.parquet$`)

// Manifest is the per-table document listing schema and ordered shards.
// Fields are declared in sorted-key order so marshaled JSON is stable for
// diffs. The schema is append-only within a table's lifetime.
type Manifest struct {
	CreatedAt       string       `json:"created_at"`
	ManifestVersion int          `json:"manifest_version"`
	RowsPerShard    int          `json:"rows_per_shard"`
	Schema          []ColumnInfo `json:"schema"`
	Shards          []string     `json:"shards"`
	TableID         string       `json:"table_id"`
	TableName       string       `json:"table_name"`
}

// NewManifest builds a manifest for a fresh table with a newly assigned
// table_id and no shards.
func NewManifest(tableName string, schema []ColumnInfo) *Manifest {
	return &Manifest{
		CreatedAt:       nowUTC(),
		ManifestVersion: manifestVersion,
		RowsPerShard:    DefaultRowsPerShard,
		Schema:          schema,
		Shards:          []string{},
		TableID:         uuid.NewString(),
		TableName:       tableName,
	}
}

// ManifestPath returns the manifest document path for table under dbPath.
func ManifestPath(dbPath, table string) string {
	return filepath.Join(dbPath, table, ManifestFileName)
}

// LoadManifest reads and validates the manifest at path. Loading is strict:
// unknown keys or a wrong manifest_version are errors, unlike the catalog
// a missing manifest is also an error.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.ManifestVersion != manifestVersion {
		return nil, fmt.Errorf("manifest version %d, want %d", m.ManifestVersion, manifestVersion)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	data, err := marshalDoc(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Validate checks structural invariants: named table, positive shard size,
// well-formed schema and shard filenames.
func (m *Manifest) Validate() error {
	if m.TableName == "" {
		return fmt.Errorf("empty table_name")
	}
	if m.TableID == "" {
		return fmt.Errorf("empty table_id")
	}
	if m.RowsPerShard <= 0 {
		return fmt.Errorf("rows_per_shard %d, want > 0", m.RowsPerShard)
	}
	for _, col := range m.Schema {
		if err := col.Validate(); err != nil {
			return err
		}
	}
	for _, s := range m.Shards {
		if _, err := ShardIndex(s); err != nil {
			return err
		}
	}
	return nil
}

// Column returns the schema entry for name, if present.
func (m *Manifest) Column(name string) (ColumnInfo, bool) {
	for _, col := range m.Schema {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnInfo{}, false
}

// NextShardIndex returns one past the highest shard index in the manifest,
// or 0 for a table with no shards.
func (m *Manifest) NextShardIndex() int {
	next := 0
	for _, s := range m.Shards {
		if i, err := ShardIndex(s); err == nil && i >= next {
			next = i + 1
		}
	}
	return next
}

// ShardName returns the canonical shard filename for index i.
func ShardName(i int) string {
	return fmt.Sprintf("shard-%d.parquet", i)
}

// ShardIndex parses the index out of a shard-N.parquet filename.
func ShardIndex(name string) (int, error) {
	match := shardNameRe.FindStringSubmatch(name)
	if match == nil {
		return 0, fmt.Errorf("malformed shard name %q", name)
	}
	i, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("malformed shard index in %q: %w", name, err)
	}
	return i, nil
}
