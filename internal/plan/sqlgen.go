package plan

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snowfort-db/snowfort/internal/sqlparse"
)

// InputsLevel tags what kind of outputs feed the final reduce: raw map
// outputs, or intermediate partial-aggregate outputs.
type InputsLevel string

const (
	InputsMap    InputsLevel = "map"
	InputsInterm InputsLevel = "interm"
)

// safeIdent makes a column or filename fragment usable inside an SQL alias.
func safeIdent(s string) string {
	s = strings.ReplaceAll(s, "*", "star")
	s = strings.ReplaceAll(s, ".", "_")
	return strings.ReplaceAll(s, "-", "_")
}

// mapAlias names the per-shard measure column for an aggregate.
func mapAlias(fn sqlparse.AggFunc, col string) string {
	id := safeIdent(col)
	switch fn {
	case sqlparse.AggCount:
		return "c_" + id
	case sqlparse.AggSum:
		return "s_" + id
	case sqlparse.AggMin:
		return "min_" + id
	case sqlparse.AggMax:
		return "max_" + id
	}
	panic(fmt.Sprintf("no map alias for aggregate %q", fn))
}

// mergeFunc is the aggregate that re-combines a partial measure: counts and
// sums add, min/max idempotently re-apply.
func mergeFunc(fn sqlparse.AggFunc) string {
	switch fn {
	case sqlparse.AggCount, sqlparse.AggSum:
		return "sum"
	case sqlparse.AggMin, sqlparse.AggMax:
		return string(fn)
	}
	panic(fmt.Sprintf("no merge func for aggregate %q", fn))
}

// defaultAlias is the user-visible output column when no alias was given.
func defaultAlias(fn sqlparse.AggFunc, col string) string {
	if fn == sqlparse.AggCount && col == "*" {
		return "count_star"
	}
	return fmt.Sprintf("%s_%s", fn, safeIdent(col))
}

func avgAlias(a sqlparse.AggExpr) string {
	if a.Alias != "" {
		return a.Alias
	}
	return "avg_" + safeIdent(a.Col)
}

// groupCols returns the effective grouping columns: the explicit GROUP BY, or
// the raw projected columns when the select list mixes columns and aggregates.
func groupCols(q sqlparse.SelectQuery) []string {
	if q.GroupBy != nil {
		return append([]string(nil), q.GroupBy...)
	}
	if !q.HasAggregates() {
		return nil
	}
	var cols []string
	for _, item := range q.Select {
		if ref, ok := item.(sqlparse.ColumnRef); ok {
			cols = append(cols, ref.Name)
		}
	}
	return cols
}

func aggExprs(q sqlparse.SelectQuery) []sqlparse.AggExpr {
	var aggs []sqlparse.AggExpr
	for _, item := range q.Select {
		if a, ok := item.(sqlparse.AggExpr); ok {
			aggs = append(aggs, a)
		}
	}
	return aggs
}

// sumAggFor returns the explicitly requested sum(col) aggregate, if any.
// avg(col) shares its map measure with such a sum instead of duplicating it.
func sumAggFor(q sqlparse.SelectQuery, col string) *sqlparse.AggExpr {
	for _, a := range aggExprs(q) {
		if a.Func == sqlparse.AggSum && a.Col == col {
			agg := a
			return &agg
		}
	}
	return nil
}

// mapMeasures is the deduplicated (func, col) list the map level must
// compute. avg(x) expands into sum(x) and count(x).
func mapMeasures(q sqlparse.SelectQuery) []measure {
	seen := map[measure]bool{}
	var out []measure

	add := func(m measure) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}

	for _, a := range aggExprs(q) {
		if a.Func == sqlparse.AggAvg {
			add(measure{sqlparse.AggSum, a.Col})
			add(measure{sqlparse.AggCount, a.Col})
			continue
		}
		add(measure{a.Func, a.Col})
	}
	return out
}

type measure struct {
	fn  sqlparse.AggFunc
	col string
}

// renderPredicate emits one WHERE conjunct. Null tests become postfix
// operators; string literals are wrapped in single quotes unless already
// quoted.
func renderPredicate(p sqlparse.PredicateTerm) string {
	op := strings.ReplaceAll(p.Op, "_", " ")
	if p.Op == sqlparse.OpIsNull || p.Op == sqlparse.OpIsNotNull {
		return fmt.Sprintf("%s %s", p.Col, op)
	}
	return fmt.Sprintf("%s %s %s", p.Col, op, renderLiteral(p.Value))
}

func renderLiteral(v any) string {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") && len(val) >= 2 {
			return val
		}
		return "'" + val + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func renderWhere(q sqlparse.SelectQuery) string {
	if len(q.Where) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.Where))
	for _, p := range q.Where {
		parts = append(parts, renderPredicate(p))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func renderGroupBy(group []string) string {
	if len(group) == 0 {
		return ""
	}
	return " GROUP BY " + strings.Join(group, ", ")
}

// unionAll reads every input file and concatenates the rows.
func unionAll(inputs []string) string {
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		parts = append(parts, fmt.Sprintf("SELECT * FROM '%s'", in))
	}
	return strings.Join(parts, " UNION ALL ")
}

// materialize wraps a SELECT so its result lands in a parquet file, with
// whitespace collapsed into a single line.
func materialize(selectSQL, outPath string) string {
	sql := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET);", selectSQL, outPath)
	return strings.Join(strings.Fields(sql), " ")
}

// buildMapSelect projects the grouping columns, raw column refs and the
// per-shard measures out of one shard, applying the query's filters.
func buildMapSelect(q sqlparse.SelectQuery, shardPath string) string {
	group := groupCols(q)

	var parts []string
	seen := map[string]bool{}
	addCol := func(c string) {
		if !seen[c] {
			seen[c] = true
			parts = append(parts, c)
		}
	}

	for _, item := range q.Select {
		if ref, ok := item.(sqlparse.ColumnRef); ok {
			addCol(ref.Name)
		}
	}
	for _, c := range group {
		addCol(c)
	}
	for _, m := range mapMeasures(q) {
		parts = append(parts, fmt.Sprintf("%s(%s) AS %s", m.fn, m.col, mapAlias(m.fn, m.col)))
	}
	if len(parts) == 0 {
		parts = append(parts, "*")
	}

	sql := fmt.Sprintf("SELECT %s FROM '%s'", strings.Join(parts, ", "), shardPath)
	sql += renderWhere(q)
	sql += renderGroupBy(group)
	return sql
}

// buildReduceSelect merges up to fanout partial outputs into one, applying
// the partial merge rules (count/sum add, min/max re-apply, avg carries its
// sum and count partials separately). The first reduction level reads map
// aliases; deeper levels read the _partial columns the previous level wrote.
// Output naming is idempotent so the merge recurses unchanged.
func buildReduceSelect(q sqlparse.SelectQuery, inputs []string, level InputsLevel) string {
	group := groupCols(q)
	union := unionAll(inputs)

	if !q.HasAggregates() {
		if len(group) > 0 {
			return fmt.Sprintf("WITH partial AS (%s) SELECT %s FROM partial GROUP BY %s",
				union, strings.Join(group, ", "), strings.Join(group, ", "))
		}
		return fmt.Sprintf("WITH partial AS (%s) SELECT * FROM partial", union)
	}

	parts := append([]string(nil), group...)

	for _, a := range aggExprs(q) {
		if a.Func == sqlparse.AggAvg {
			alias := avgAlias(a)
			countIn := mapAlias(sqlparse.AggCount, a.Col)
			if level == InputsInterm {
				countIn = alias + "_count_partial"
			}
			parts = append(parts, fmt.Sprintf("sum(%s) AS %s_count_partial", countIn, alias))
			if sumAggFor(q, a.Col) == nil {
				sumIn := mapAlias(sqlparse.AggSum, a.Col)
				if level == InputsInterm {
					sumIn = alias + "_sum_partial"
				}
				parts = append(parts, fmt.Sprintf("sum(%s) AS %s_sum_partial", sumIn, alias))
			}
			continue
		}

		in := mapAlias(a.Func, a.Col)
		if level == InputsInterm {
			in = partialAlias(a)
		}
		parts = append(parts, fmt.Sprintf("%s(%s) AS %s",
			mergeFunc(a.Func), in, partialAlias(a)))
	}

	sql := fmt.Sprintf("WITH partial AS (%s) SELECT %s FROM partial", union, strings.Join(parts, ", "))
	sql += renderGroupBy(group)
	return sql
}

// partialAlias names the carried partial column for a non-avg aggregate.
// Naming is idempotent: later reduction levels re-derive the same name.
func partialAlias(a sqlparse.AggExpr) string {
	if a.Func == sqlparse.AggCount && a.Col == "*" {
		return "count_star_partial"
	}
	if a.Alias != "" {
		return a.Alias + "_partial"
	}
	return defaultAlias(a.Func, a.Col) + "_partial"
}

// buildFinalSelect produces the user-visible columns. Depending on whether
// any intermediate reduction ran, the inputs carry raw map measures or
// _partial columns; avg is reconstituted as sum-of-sums over sum-of-counts
// either way.
func buildFinalSelect(q sqlparse.SelectQuery, inputs []string, level InputsLevel) string {
	group := groupCols(q)
	union := unionAll(inputs)

	if !q.HasAggregates() {
		if len(group) > 0 {
			return fmt.Sprintf("WITH partial AS (%s) SELECT %s FROM partial GROUP BY %s",
				union, strings.Join(group, ", "), strings.Join(group, ", "))
		}
		return fmt.Sprintf("WITH partial AS (%s) SELECT * FROM partial", union)
	}

	parts := append([]string(nil), group...)

	for _, a := range aggExprs(q) {
		if level == InputsMap {
			parts = append(parts, finalFromMap(a))
			continue
		}
		parts = append(parts, finalFromInterm(q, a))
	}

	sql := fmt.Sprintf("WITH partial AS (%s) SELECT %s FROM partial", union, strings.Join(parts, ", "))
	sql += renderGroupBy(group)
	return sql
}

func finalFromMap(a sqlparse.AggExpr) string {
	if a.Func == sqlparse.AggAvg {
		return fmt.Sprintf("sum(%s) / nullif(sum(%s), 0) AS %s",
			mapAlias(sqlparse.AggSum, a.Col), mapAlias(sqlparse.AggCount, a.Col), avgAlias(a))
	}

	out := a.Alias
	if out == "" {
		out = defaultAlias(a.Func, a.Col)
	}
	return fmt.Sprintf("%s(%s) AS %s", mergeFunc(a.Func), mapAlias(a.Func, a.Col), out)
}

func finalFromInterm(q sqlparse.SelectQuery, a sqlparse.AggExpr) string {
	if a.Func == sqlparse.AggAvg {
		alias := avgAlias(a)
		sumPartial := alias + "_sum_partial"
		if sumAgg := sumAggFor(q, a.Col); sumAgg != nil {
			sumPartial = partialAlias(*sumAgg)
		}
		return fmt.Sprintf("sum(%s) / nullif(sum(%s), 0) AS %s",
			sumPartial, alias+"_count_partial", alias)
	}

	out := a.Alias
	if out == "" {
		out = defaultAlias(a.Func, a.Col)
	}
	return fmt.Sprintf("%s(%s) AS %s", mergeFunc(a.Func), partialAlias(a), out)
}

// Map output filenames embed the table and shard so a tmp directory is
// self-describing during debugging.
func mapOutPath(tmpDir, table, shard string) string {
	return filepath.Join(tmpDir, fmt.Sprintf("map__%s__%s.parquet", table, safeIdent(shard)))
}

func reduceOutPath(tmpDir, table, tag string) string {
	return filepath.Join(tmpDir, fmt.Sprintf("reduce__%s__%s.parquet", table, safeIdent(tag)))
}
