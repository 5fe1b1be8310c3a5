package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snowfort-db/snowfort/internal/catalog"
	"github.com/snowfort-db/snowfort/internal/protocol"
)

// Executor runs orchestrator tasks. DDL mutates the catalog and manifests
// directly; INSERT and SELECT go through the embedded engine.
type Executor struct {
	eng *Engine
	log *logrus.Entry
}

// NewExecutor wraps an engine.
func NewExecutor(eng *Engine) *Executor {
	return &Executor{
		eng: eng,
		log: logrus.WithField("component", "executor"),
	}
}

// Execute dispatches one task. Failures never cross the RPC boundary as
// errors; they come back inside the response envelope.
func (e *Executor) Execute(ctx context.Context, req protocol.TaskRequest) protocol.TaskResponse {
	e.log.WithFields(logrus.Fields{"kind": req.Kind, "db_path": req.DBPath}).Info("executing task")

	if req.DBPath == "" {
		return errResponse(fmt.Errorf("task missing db_path"))
	}

	var (
		result string
		err    error
	)
	switch req.Kind {
	case protocol.TaskCreate:
		result, err = e.create(ctx, req.DBPath, req.Create)
	case protocol.TaskDrop:
		result, err = e.drop(req.DBPath, req.Drop)
	case protocol.TaskInsert:
		result, err = e.insert(ctx, req.DBPath, req.Insert)
	case protocol.TaskSelect:
		result, err = e.selectStmt(ctx, req.Select)
	default:
		err = fmt.Errorf("unsupported task kind %q", req.Kind)
	}
	if err != nil {
		e.log.WithError(err).WithField("kind", req.Kind).Error("task failed")
		return errResponse(err)
	}

	raw, merr := json.Marshal(result)
	if merr != nil {
		return errResponse(fmt.Errorf("encoding result: %w", merr))
	}
	return protocol.TaskResponse{OK: true, Result: raw}
}

func errResponse(err error) protocol.TaskResponse {
	return protocol.TaskResponse{OK: false, Error: err.Error()}
}

// create provisions the table directory and manifest before naming the table
// in the catalog, so a cataloged table always has a loadable manifest.
func (e *Executor) create(ctx context.Context, dbPath string, t *protocol.CreateTask) (string, error) {
	if t == nil {
		return "", fmt.Errorf("create task missing payload")
	}
	if len(t.Schema) == 0 {
		return "", fmt.Errorf("create table %q: empty schema", t.Table)
	}
	for _, col := range t.Schema {
		if err := col.Validate(); err != nil {
			return "", fmt.Errorf("create table %q: %w", t.Table, err)
		}
	}

	cat, err := catalog.LoadCatalog(dbPath)
	if err != nil {
		return "", err
	}
	if cat.HasTable(t.Table) {
		if t.IfNotExists {
			return fmt.Sprintf("table %q already exists", t.Table), nil
		}
		return "", fmt.Errorf("table %q: %w", t.Table, catalog.ErrTableExists)
	}

	tablePath := filepath.Join(dbPath, t.Table)
	if err := os.MkdirAll(tablePath, 0o755); err != nil {
		return "", fmt.Errorf("creating table directory: %w", err)
	}

	man := catalog.NewManifest(t.Table, t.Schema)
	if err := man.Save(catalog.ManifestPath(dbPath, t.Table)); err != nil {
		return "", err
	}

	if err := cat.CreateTable(t.Table, man.TableID); err != nil {
		return "", err
	}
	if err := cat.Save(dbPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("created table %q", t.Table), nil
}

// drop removes the table's catalog entry, deletes the shard directory, and
// persists the catalog last. A directory with a manifest is never left
// uncataloged.
func (e *Executor) drop(dbPath string, t *protocol.DropTask) (string, error) {
	if t == nil {
		return "", fmt.Errorf("drop task missing payload")
	}

	cat, err := catalog.LoadCatalog(dbPath)
	if err != nil {
		return "", err
	}
	if err := cat.DropTable(t.Table, t.IfExists); err != nil {
		return "", err
	}

	if err := os.RemoveAll(filepath.Join(dbPath, t.Table)); err != nil {
		return "", fmt.Errorf("removing table directory: %w", err)
	}
	if err := cat.Save(dbPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("dropped table %q", t.Table), nil
}

// insert loads the source file, validates it against the manifest schema, and
// appends fixed-size shards. Each shard is written to a tmp_shard file and
// renamed into place before the manifest names it.
func (e *Executor) insert(ctx context.Context, dbPath string, t *protocol.InsertTask) (string, error) {
	if t == nil {
		return "", fmt.Errorf("insert task missing payload")
	}

	src, err := sourceRelation(t.SrcPath)
	if err != nil {
		return "", err
	}

	manPath := catalog.ManifestPath(dbPath, t.Table)
	man, err := catalog.LoadManifest(manPath)
	if err != nil {
		return "", fmt.Errorf("table %q: %w", t.Table, err)
	}

	rowsPerShard := t.RowsPerShard
	if rowsPerShard <= 0 {
		rowsPerShard = man.RowsPerShard
	}

	if err := e.validateSource(ctx, src, man); err != nil {
		return "", err
	}

	total, err := e.eng.Count(ctx, fmt.Sprintf("SELECT count(*) FROM %s", src))
	if err != nil {
		return "", err
	}
	if total == 0 {
		return fmt.Sprintf("inserted 0 rows into table %q", t.Table), nil
	}

	// Project in schema order with casts to the physical column types, so
	// every shard of a table carries an identical parquet schema.
	proj := make([]string, 0, len(man.Schema))
	for _, col := range man.Schema {
		phys, err := catalog.PhysicalType(col.Type)
		if err != nil {
			return "", err
		}
		proj = append(proj, fmt.Sprintf("CAST(%s AS %s) AS %s", col.Name, phys, col.Name))
	}

	tablePath := filepath.Join(dbPath, t.Table)
	start := man.NextShardIndex()
	shards := 0

	for offset := int64(0); offset < total; offset += int64(rowsPerShard) {
		tmpPath := filepath.Join(tablePath, fmt.Sprintf("tmp_shard-%d.parquet", shards))
		copySQL := fmt.Sprintf(
			"COPY (SELECT %s FROM %s LIMIT %d OFFSET %d) TO '%s' (FORMAT PARQUET)",
			strings.Join(proj, ", "), src, rowsPerShard, offset, tmpPath)
		if err := e.eng.Exec(ctx, copySQL); err != nil {
			return "", fmt.Errorf("writing shard %d: %w", start+shards, err)
		}

		name := catalog.ShardName(start + shards)
		if err := os.Rename(tmpPath, filepath.Join(tablePath, name)); err != nil {
			return "", fmt.Errorf("publishing shard %d: %w", start+shards, err)
		}
		man.Shards = append(man.Shards, name)
		shards++
	}

	if err := man.Save(manPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("inserted %d rows into table %q (%d shards)", total, t.Table, shards), nil
}

// validateSource checks the source against the manifest schema before any
// shard is written: every schema column present, no extras, no nulls in
// non-nullable columns, and every value castable to its physical type.
func (e *Executor) validateSource(ctx context.Context, src string, man *catalog.Manifest) error {
	cols, err := e.eng.Columns(ctx, fmt.Sprintf("SELECT * FROM %s", src))
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c)] = true
	}

	want := make(map[string]bool, len(man.Schema))
	for _, col := range man.Schema {
		want[col.Name] = true
	}
	for _, c := range cols {
		if !want[strings.ToLower(c)] {
			return fmt.Errorf("source has extra column %q not in schema", c)
		}
	}

	for _, col := range man.Schema {
		if !have[col.Name] {
			return fmt.Errorf("source missing column %q", col.Name)
		}
		if !col.Nullable {
			nulls, err := e.eng.Count(ctx,
				fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL", src, col.Name))
			if err != nil {
				return err
			}
			if nulls > 0 {
				return fmt.Errorf("column %q has %d null values but is not nullable", col.Name, nulls)
			}
		}

		// Probe the cast over the whole source so a lossy value surfaces
		// here and not halfway through the shard writes.
		phys, err := catalog.PhysicalType(col.Type)
		if err != nil {
			return err
		}
		bad, err := e.eng.Count(ctx, fmt.Sprintf(
			"SELECT count(*) FROM %s WHERE %s IS NOT NULL AND TRY_CAST(%s AS %s) IS NULL",
			src, col.Name, col.Name, phys))
		if err != nil {
			return err
		}
		if bad > 0 {
			return fmt.Errorf("column %q has %d values that do not cast to %s", col.Name, bad, phys)
		}
	}
	return nil
}

// selectStmt runs one materializing plan statement verbatim.
func (e *Executor) selectStmt(ctx context.Context, t *protocol.SelectTask) (string, error) {
	if t == nil {
		return "", fmt.Errorf("select task missing payload")
	}
	if err := e.eng.Exec(ctx, t.SQL); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %s", t.Out), nil
}

// sourceRelation maps a data file to the DuckDB table function reading it.
func sourceRelation(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fmt.Sprintf("read_csv('%s')", path), nil
	case ".parquet", ".pq":
		return fmt.Sprintf("read_parquet('%s')", path), nil
	default:
		return "", fmt.Errorf("unsupported source file type %q", filepath.Ext(path))
	}
}
