package sqlparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/snowfort-db/snowfort/internal/catalog"
)

var quotedRe = regexp.MustCompile(`'[^']*'`)

// glued multi-word keywords, canonicalized to single tokens. Longer phrases
// first so "is not null" never degrades into "is_null".
var gluePairs = [][2]string{
	{"is not null", "is_not_null"},
	{"is null", "is_null"},
	{"if not exists", "if_not_exists"},
	{"if exists", "if_exists"},
	{"group by", "group_by"},
	{"rows per shard", "rows_per_shard"},
}

var punctPad = strings.NewReplacer(
	",", " , ",
	"(", " ( ",
	")", " ) ",
	";", " ; ",
)

// Preprocess canonicalizes a raw statement: everything outside single-quoted
// literals is lowercased, multi-word keywords are glued into single tokens,
// and commas/parentheses are padded so whitespace splitting yields tokens.
// Quoted literals pass through verbatim. Preprocessing is idempotent.
func Preprocess(raw string) string {
	return strings.Join(Tokenize(raw), " ")
}

// Tokenize splits a raw statement into tokens. A quoted literal is always a
// single token, even when it contains spaces or punctuation.
func Tokenize(raw string) []string {
	var toks []string

	rest := raw
	for {
		loc := quotedRe.FindStringIndex(rest)
		if loc == nil {
			toks = append(toks, plainTokens(rest)...)
			break
		}
		toks = append(toks, plainTokens(rest[:loc[0]])...)
		toks = append(toks, rest[loc[0]:loc[1]])
		rest = rest[loc[1]:]
	}
	return toks
}

func plainTokens(s string) []string {
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	for _, pair := range gluePairs {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return strings.Fields(punctPad.Replace(s))
}

// Parse lowers a raw statement into one of the four query variants.
func Parse(raw string) (Query, error) {
	toks := Tokenize(raw)

	// Trailing semicolon is optional.
	if n := len(toks); n > 0 && toks[n-1] == ";" {
		toks = toks[:n-1]
	}
	if len(toks) == 0 {
		return nil, parseErrf("", "empty statement")
	}

	switch toks[0] {
	case "select":
		return parseSelect(toks[1:])
	case "create":
		return parseCreate(toks[1:])
	case "drop":
		return parseDrop(toks[1:])
	case "insert":
		return parseInsert(toks[1:])
	default:
		return nil, parseErrf(toks[0], "expected select, create, drop or insert")
	}
}

func parseSelect(toks []string) (Query, error) {
	fromIdx := indexOf(toks, "from")
	if fromIdx <= 0 {
		return nil, parseErrf(strings.Join(toks, " "), "select needs a column list and a from clause")
	}

	items, err := parseSelectList(toks[:fromIdx])
	if err != nil {
		return nil, err
	}

	rest := toks[fromIdx+1:]
	if len(rest) == 0 {
		return nil, parseErrf("from", "missing table name")
	}
	table := rest[0]
	if !isIdent(table) {
		return nil, parseErrf(table, "invalid table name")
	}
	rest = rest[1:]

	q := SelectQuery{Table: table, Select: items}

	if len(rest) > 0 && rest[0] == "where" {
		gbIdx := indexOf(rest, "group_by")
		end := len(rest)
		if gbIdx != -1 {
			end = gbIdx
		}
		q.Where, err = parseWhere(rest[1:end])
		if err != nil {
			return nil, err
		}
		if gbIdx != -1 {
			rest = rest[gbIdx:]
		} else {
			rest = nil
		}
	}

	if len(rest) > 0 && rest[0] == "group_by" {
		q.GroupBy, err = parseIdentList(rest[1:])
		if err != nil {
			return nil, err
		}
		rest = nil
	}

	if len(rest) > 0 {
		return nil, parseErrf(strings.Join(rest, " "), "unexpected trailing tokens")
	}
	return q, nil
}

func parseSelectList(toks []string) ([]SelectItem, error) {
	groups, err := splitOn(toks, ",")
	if err != nil {
		return nil, err
	}
	items := make([]SelectItem, 0, len(groups))
	for _, g := range groups {
		item, err := parseSelectItem(g)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseSelectItem(toks []string) (SelectItem, error) {
	if len(toks) == 0 {
		return nil, parseErrf("", "empty select item")
	}

	if fn, ok := aggFuncs[toks[0]]; ok {
		if len(toks) < 4 || toks[1] != "(" || toks[3] != ")" {
			return nil, parseErrf(strings.Join(toks, " "), "malformed aggregate, want %s( col )", toks[0])
		}
		col := toks[2]
		if col == "*" && fn != AggCount {
			return nil, parseErrf(strings.Join(toks, " "), "only count accepts *")
		}
		if col != "*" && !isIdent(col) {
			return nil, parseErrf(col, "invalid aggregate argument")
		}
		switch len(toks) {
		case 4:
			return AggExpr{Func: fn, Col: col}, nil
		case 6:
			if toks[4] != "as" || !isIdent(toks[5]) {
				return nil, parseErrf(strings.Join(toks[4:], " "), "malformed alias")
			}
			return AggExpr{Func: fn, Col: col, Alias: toks[5]}, nil
		default:
			return nil, parseErrf(strings.Join(toks, " "), "malformed aggregate")
		}
	}

	switch len(toks) {
	case 1:
		if !isIdent(toks[0]) {
			return nil, parseErrf(toks[0], "invalid column name")
		}
		return ColumnRef{Name: toks[0]}, nil
	case 3:
		if toks[1] != "as" || !isIdent(toks[0]) || !isIdent(toks[2]) {
			return nil, parseErrf(strings.Join(toks, " "), "malformed column alias")
		}
		return ColumnRef{Name: toks[0], Alias: toks[2]}, nil
	default:
		return nil, parseErrf(strings.Join(toks, " "), "malformed select item")
	}
}

func parseWhere(toks []string) ([]PredicateTerm, error) {
	groups, err := splitOn(toks, "and")
	if err != nil {
		return nil, err
	}
	preds := make([]PredicateTerm, 0, len(groups))
	for _, g := range groups {
		p, err := parsePredicate(g)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func parsePredicate(toks []string) (PredicateTerm, error) {
	switch len(toks) {
	case 2:
		if !nullOps[toks[1]] {
			return PredicateTerm{}, parseErrf(strings.Join(toks, " "), "expected is_null or is_not_null")
		}
		if !isIdent(toks[0]) {
			return PredicateTerm{}, parseErrf(toks[0], "invalid column in predicate")
		}
		return PredicateTerm{Col: toks[0], Op: toks[1]}, nil
	case 3:
		if !cmpOps[toks[1]] {
			return PredicateTerm{}, parseErrf(toks[1], "unknown comparison operator")
		}
		if !isIdent(toks[0]) {
			return PredicateTerm{}, parseErrf(toks[0], "invalid column in predicate")
		}
		val, err := parseLiteral(toks[2])
		if err != nil {
			return PredicateTerm{}, err
		}
		return PredicateTerm{Col: toks[0], Op: toks[1], Value: val}, nil
	default:
		return PredicateTerm{}, parseErrf(strings.Join(toks, " "), "malformed predicate")
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseLiteral coerces a literal token: pure digits become int64, digit runs
// with one decimal point become float64, quoted strings are unwrapped.
func parseLiteral(tok string) (any, error) {
	if isDigits(tok) {
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, parseErrf(tok, "integer out of range")
		}
		return n, nil
	}
	if strings.Count(tok, ".") == 1 && isDigits(strings.Replace(tok, ".", "", 1)) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, parseErrf(tok, "malformed number")
		}
		return f, nil
	}
	if len(tok) >= 2 && strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") {
		return tok[1 : len(tok)-1], nil
	}
	return nil, parseErrf(tok, "unrecognized literal")
}

func parseIdentList(toks []string) ([]string, error) {
	groups, err := splitOn(toks, ",")
	if err != nil {
		return nil, err
	}
	idents := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g) != 1 || !isIdent(g[0]) {
			return nil, parseErrf(strings.Join(g, " "), "expected a column name")
		}
		idents = append(idents, g[0])
	}
	return idents, nil
}

func parseCreate(toks []string) (Query, error) {
	if len(toks) < 5 || toks[0] != "table" {
		return nil, parseErrf(strings.Join(toks, " "), "expected create table <name> ( ... )")
	}
	table := toks[1]
	if !isIdent(table) {
		return nil, parseErrf(table, "invalid table name")
	}
	if toks[2] != "(" {
		return nil, parseErrf(toks[2], "expected ( after table name")
	}

	closeIdx := lastIndexOf(toks, ")")
	if closeIdx == -1 {
		return nil, parseErrf(strings.Join(toks, " "), "missing closing )")
	}

	schema, err := parseColDefs(toks[3:closeIdx])
	if err != nil {
		return nil, err
	}

	q := CreateQuery{Table: table, Schema: schema}
	rest := toks[closeIdx+1:]
	if len(rest) == 1 && rest[0] == "if_not_exists" {
		q.IfNotExists = true
	} else if len(rest) != 0 {
		return nil, parseErrf(strings.Join(rest, " "), "unexpected trailing tokens")
	}
	return q, nil
}

func parseColDefs(toks []string) ([]catalog.ColumnInfo, error) {
	groups, err := splitOn(toks, ",")
	if err != nil {
		return nil, err
	}
	schema := make([]catalog.ColumnInfo, 0, len(groups))
	for _, g := range groups {
		col, err := parseColDef(g)
		if err != nil {
			return nil, err
		}
		schema = append(schema, col)
	}
	return schema, nil
}

func parseColDef(toks []string) (catalog.ColumnInfo, error) {
	if len(toks) != 2 && len(toks) != 3 {
		return catalog.ColumnInfo{}, parseErrf(strings.Join(toks, " "), "expected <name> <type> [is_not_null]")
	}
	if !isIdent(toks[0]) {
		return catalog.ColumnInfo{}, parseErrf(toks[0], "invalid column name")
	}
	typ := catalog.ColType(toks[1])
	if !catalog.ValidColType(typ) {
		return catalog.ColumnInfo{}, parseErrf(toks[1], "unknown column type")
	}
	nullable := true
	if len(toks) == 3 {
		if toks[2] != "is_not_null" {
			return catalog.ColumnInfo{}, parseErrf(toks[2], "expected is_not_null")
		}
		nullable = false
	}
	return catalog.ColumnInfo{Name: toks[0], Nullable: nullable, Type: typ}, nil
}

func parseDrop(toks []string) (Query, error) {
	if len(toks) < 2 || toks[0] != "table" {
		return nil, parseErrf(strings.Join(toks, " "), "expected drop table <name>")
	}
	table := toks[1]
	if !isIdent(table) {
		return nil, parseErrf(table, "invalid table name")
	}
	q := DropQuery{Table: table}
	rest := toks[2:]
	if len(rest) == 1 && rest[0] == "if_exists" {
		q.IfExists = true
	} else if len(rest) != 0 {
		return nil, parseErrf(strings.Join(rest, " "), "unexpected trailing tokens")
	}
	return q, nil
}

func parseInsert(toks []string) (Query, error) {
	if len(toks) < 4 || toks[0] != "into" || toks[2] != "from" {
		return nil, parseErrf(strings.Join(toks, " "), "expected insert into <table> from <path>")
	}
	table := toks[1]
	if !isIdent(table) {
		return nil, parseErrf(table, "invalid table name")
	}

	// Quote the path to preserve case; a bare path is case-folded like any
	// other token.
	src := toks[3]
	if len(src) >= 2 && strings.HasPrefix(src, "'") && strings.HasSuffix(src, "'") {
		src = src[1 : len(src)-1]
	}
	if src == "" {
		return nil, parseErrf(toks[3], "empty source path")
	}

	q := InsertQuery{Table: table, SrcPath: src}
	rest := toks[4:]
	switch {
	case len(rest) == 0:
	case len(rest) == 2 && rest[0] == "rows_per_shard":
		n, err := strconv.Atoi(rest[1])
		if err != nil || n <= 0 {
			return nil, parseErrf(rest[1], "rows per shard must be a positive integer")
		}
		q.RowsPerShard = n
	default:
		return nil, parseErrf(strings.Join(rest, " "), "unexpected trailing tokens")
	}
	return q, nil
}

// splitOn splits toks into groups separated by sep, rejecting empty groups.
func splitOn(toks []string, sep string) ([][]string, error) {
	var groups [][]string
	var cur []string
	for _, tok := range toks {
		if tok == sep {
			if len(cur) == 0 {
				return nil, parseErrf(sep, "dangling %q", sep)
			}
			groups = append(groups, cur)
			cur = nil
			continue
		}
		cur = append(cur, tok)
	}
	if len(cur) == 0 {
		return nil, parseErrf(strings.Join(toks, " "), "trailing %q", sep)
	}
	groups = append(groups, cur)
	return groups, nil
}

func indexOf(toks []string, tok string) int {
	for i, t := range toks {
		if t == tok {
			return i
		}
	}
	return -1
}

func lastIndexOf(toks []string, tok string) int {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i] == tok {
			return i
		}
	}
	return -1
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_.]*$`)

func isIdent(tok string) bool {
	return identRe.MatchString(tok)
}
