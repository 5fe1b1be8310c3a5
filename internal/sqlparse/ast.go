// Package sqlparse lowers the SQL subset understood by the engine into typed
// query values. The parser is a small hand-written tokenizer plus recursive
// recognizer; it is deterministic, total on well-formed inputs, and never
// consults the catalog.
package sqlparse

import (
	"fmt"

	"github.com/snowfort-db/snowfort/internal/catalog"
)

// AggFunc is one of the supported aggregate functions.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggAvg   AggFunc = "avg"
)

var aggFuncs = map[string]AggFunc{
	"count": AggCount,
	"sum":   AggSum,
	"min":   AggMin,
	"max":   AggMax,
	"avg":   AggAvg,
}

// Comparison and null-test operators accepted in predicates.
const (
	OpEq        = "="
	OpNeq       = "!="
	OpLt        = "<"
	OpLte       = "<="
	OpGt        = ">"
	OpGte       = ">="
	OpIsNull    = "is_null"
	OpIsNotNull = "is_not_null"
)

var cmpOps = map[string]bool{
	OpEq: true, OpNeq: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
}

var nullOps = map[string]bool{
	OpIsNull: true, OpIsNotNull: true,
}

// Query is the tagged variant produced by Parse: exactly one of SelectQuery,
// CreateQuery, InsertQuery or DropQuery.
type Query interface {
	queryKind() string
}

// SelectItem is either a ColumnRef or an AggExpr.
type SelectItem interface {
	selectItem() string
}

// ColumnRef is a plain projected column, optionally aliased.
type ColumnRef struct {
	Name  string
	Alias string
}

func (ColumnRef) selectItem() string { return "column" }

// AggExpr is an aggregate over a column ("*" only for count), optionally
// aliased.
type AggExpr struct {
	Func  AggFunc
	Col   string
	Alias string
}

func (AggExpr) selectItem() string { return "agg" }

// PredicateTerm is one conjunct of the WHERE clause. Value is nil for the
// null-test operators, otherwise int64, float64 or string.
type PredicateTerm struct {
	Col   string
	Op    string
	Value any
}

// SelectQuery is a parsed SELECT statement.
type SelectQuery struct {
	Table   string
	Select  []SelectItem
	Where   []PredicateTerm
	GroupBy []string
}

func (SelectQuery) queryKind() string { return "select" }

// HasAggregates reports whether any select item is an aggregate.
func (q SelectQuery) HasAggregates() bool {
	for _, item := range q.Select {
		if _, ok := item.(AggExpr); ok {
			return true
		}
	}
	return false
}

// CreateQuery is a parsed CREATE TABLE statement.
type CreateQuery struct {
	Table       string
	Schema      []catalog.ColumnInfo
	IfNotExists bool
}

func (CreateQuery) queryKind() string { return "create" }

// InsertQuery is a parsed INSERT INTO ... FROM <path> statement.
// RowsPerShard is 0 when not overridden.
type InsertQuery struct {
	Table        string
	SrcPath      string
	RowsPerShard int
}

func (InsertQuery) queryKind() string { return "insert" }

// DropQuery is a parsed DROP TABLE statement.
type DropQuery struct {
	Table    string
	IfExists bool
}

func (DropQuery) queryKind() string { return "drop" }

// ParseError reports a malformed statement, naming the offending sub-string.
type ParseError struct {
	Near string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error near %q: %s", e.Near, e.Msg)
}

func parseErrf(near, format string, args ...any) error {
	return &ParseError{Near: near, Msg: fmt.Sprintf(format, args...)}
}
