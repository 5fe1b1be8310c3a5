package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testSchema() []ColumnInfo {
	return []ColumnInfo{
		{Name: "a", Nullable: true, Type: "int"},
		{Name: "b", Nullable: false, Type: "varchar"},
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events", ManifestFileName)

	m := NewManifest("events", testSchema())
	m.Shards = []string{"shard-0.parquet", "shard-1.parquet"}
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() failed: %v", err)
	}
	if loaded.TableName != "events" {
		t.Errorf("TableName = %q, want events", loaded.TableName)
	}
	if loaded.TableID != m.TableID {
		t.Errorf("TableID changed across round trip: %q vs %q", loaded.TableID, m.TableID)
	}
	if len(loaded.Schema) != 2 {
		t.Fatalf("Schema has %d columns, want 2", len(loaded.Schema))
	}
	if !loaded.Schema[0].Nullable || loaded.Schema[1].Nullable {
		t.Errorf("nullability lost: %+v", loaded.Schema)
	}
	if loaded.RowsPerShard != DefaultRowsPerShard {
		t.Errorf("RowsPerShard = %d, want %d", loaded.RowsPerShard, DefaultRowsPerShard)
	}
}

func TestLoadManifestRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)

	doc := `{
  "created_at": "2026-01-01T00:00:00Z",
  "manifest_version": 1,
  "rows_per_shard": 100,
  "schema": [],
  "shards": [],
  "surprise": true,
  "table_id": "x",
  "table_name": "t"
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("LoadManifest() accepted an unknown key")
	}
}

func TestLoadManifestRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)

	m := NewManifest("t", nil)
	m.ManifestVersion = 2
	data := `{
  "created_at": "2026-01-01T00:00:00Z",
  "manifest_version": 2,
  "rows_per_shard": 100,
  "schema": [],
  "shards": [],
  "table_id": "x",
  "table_name": "t"
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("LoadManifest() accepted manifest_version 2")
	}
}

func TestManifestJSONLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)

	m := NewManifest("events", testSchema())
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if !strings.HasSuffix(text, "\n") {
		t.Error("manifest does not end with a newline")
	}

	keys := []string{
		`"created_at"`, `"manifest_version"`, `"rows_per_shard"`,
		`"schema"`, `"shards"`, `"table_id"`, `"table_name"`,
	}
	last := -1
	for _, k := range keys {
		i := strings.Index(text, k)
		if i == -1 {
			t.Fatalf("missing key %s", k)
		}
		if i < last {
			t.Errorf("key %s out of sorted order", k)
		}
		last = i
	}
}

func TestShardIndex(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"shard-0.parquet", 0, false},
		{"shard-12.parquet", 12, false},
		{"tmp_shard-0.parquet", 0, true},
		{"shard-x.parquet", 0, true},
		{"shard-1.csv", 0, true},
	}
	for _, tt := range tests {
		got, err := ShardIndex(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ShardIndex(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ShardIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestNextShardIndex(t *testing.T) {
	m := NewManifest("t", nil)
	if got := m.NextShardIndex(); got != 0 {
		t.Errorf("NextShardIndex() empty = %d, want 0", got)
	}

	m.Shards = []string{"shard-0.parquet", "shard-3.parquet", "shard-1.parquet"}
	if got := m.NextShardIndex(); got != 4 {
		t.Errorf("NextShardIndex() = %d, want 4", got)
	}
}

func TestPhysicalType(t *testing.T) {
	if pt, err := PhysicalType("int"); err != nil || pt != "INTEGER" {
		t.Errorf("PhysicalType(int) = %q, %v", pt, err)
	}
	if pt, err := PhysicalType("text"); err != nil || pt != "VARCHAR" {
		t.Errorf("PhysicalType(text) = %q, %v", pt, err)
	}
	if _, err := PhysicalType("mapinto"); err == nil {
		t.Error("PhysicalType accepted an unknown type")
	}
}
