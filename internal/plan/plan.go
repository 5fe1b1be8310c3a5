// Package plan rewrites an aggregation query into a tree of materializing
// SQL statements exchanging partial aggregates through parquet files: one map
// statement per shard, zero or more partial-reduce levels merging fanout-sized
// chunks, and a final reduce producing the user-visible output.
//
// The rewrite is only sound for algebraic/distributive aggregates, which is
// why the parser admits exactly count, sum, min, max and avg. avg is split
// into sum and count at the map level and reconstituted only in the final
// statement, so the result is never an average of averages.
package plan

import (
	"fmt"
	"path/filepath"

	"github.com/snowfort-db/snowfort/internal/sqlparse"
)

// Statement is one self-contained materializing SQL statement: executing SQL
// writes the parquet file at Out.
type Statement struct {
	SQL string
	Out string
}

// Level is an ordered list of statements that are independent of one another.
type Level []Statement

// Plan is the level-ordered execution plan for one SELECT. Level N+1 reads
// only outputs of level N; the last level holds exactly one statement writing
// OutPath.
type Plan struct {
	Levels  []Level
	Fanout  int
	OutPath string
}

// Statements returns the total statement count across all levels.
func (p *Plan) Statements() int {
	n := 0
	for _, lvl := range p.Levels {
		n += len(lvl)
	}
	return n
}

// Build compiles a SELECT against the table's ordered shard list into plan
// levels. dbPath is the database root holding <table>/<shard> files, tmpDir
// receives intermediate outputs, and outPath is the user-visible result file.
func Build(q sqlparse.SelectQuery, shards []string, dbPath, tmpDir, outPath string) (*Plan, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards to plan over for table %q", q.Table)
	}

	fanout := Fanout(len(shards))
	p := &Plan{Fanout: fanout, OutPath: outPath}

	mapLevel := make(Level, 0, len(shards))
	current := make([]string, 0, len(shards))
	for _, shard := range shards {
		shardPath := filepath.Join(dbPath, q.Table, shard)
		out := mapOutPath(tmpDir, q.Table, shard)
		mapLevel = append(mapLevel, Statement{
			SQL: materialize(buildMapSelect(q, shardPath), out),
			Out: out,
		})
		current = append(current, out)
	}
	p.Levels = append(p.Levels, mapLevel)

	// Chunk into fanout-sized groups until one final statement suffices.
	// The first reduce level consumes map outputs; every deeper level
	// consumes the _partial columns of the level before it.
	ranIntermediate := false
	inputs := InputsMap
	for level := 0; len(current) > fanout; level++ {
		var reduceLevel Level
		var next []string

		for i := 0; i < len(current); i += fanout {
			chunk := current[i:min(i+fanout, len(current))]
			tag := fmt.Sprintf("r%d_%d", level, i/fanout)
			out := reduceOutPath(tmpDir, q.Table, tag)
			reduceLevel = append(reduceLevel, Statement{
				SQL: materialize(buildReduceSelect(q, chunk, inputs), out),
				Out: out,
			})
			next = append(next, out)
		}

		p.Levels = append(p.Levels, reduceLevel)
		current = next
		inputs = InputsInterm
		ranIntermediate = true
	}

	// The final statement projects from map measures only when no reduction
	// level ran; otherwise its inputs carry _partial columns.
	inputsLevel := InputsMap
	if ranIntermediate {
		inputsLevel = InputsInterm
	}
	p.Levels = append(p.Levels, Level{{
		SQL: materialize(buildFinalSelect(q, current, inputsLevel), outPath),
		Out: outPath,
	}})

	return p, nil
}
