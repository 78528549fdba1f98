package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/recordsync/internal/ir"
)

// SQLCompiler compiles Select queries to parameterized SQL for SQLite.
//
// Every query is ordered by insertion (seq, then key) so results are
// deterministic, and every value is passed as a parameter, never
// interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a Select to (sql, params).
//
// Field predicates only match records whose value is a JSON object; records
// holding a primitive are never reported by a field filter.
func (c *SQLCompiler) Compile(q Select) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("select requires a collection")
	}

	where := []string{"collection = ?"}
	params := []any{q.Collection}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, "json_valid(value)", "json_type(value) = 'object'", "("+filterSQL+")")
		params = append(params, filterParams...)
	}

	sql := "SELECT key, value, seq, updated_seq FROM nodes WHERE " + strings.Join(where, " AND ") +
		" ORDER BY seq ASC, key COLLATE BINARY ASC"

	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}

	return sql, params, nil
}

// compilePredicate compiles a Predicate to a WHERE clause fragment.
func (c *SQLCompiler) compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Missing:
		path, err := fieldPath(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return "json_extract(value, ?) IS NULL", []any{path}, nil

	case FieldEquals:
		path, err := fieldPath(pred.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pred.Field, err)
		}
		if param == nil {
			return "json_type(value, ?) = 'null'", []any{path}, nil
		}
		return "json_extract(value, ?) = ?", []any{path, param}, nil

	case And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")

	case Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileJunction(preds []Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, sep), params, nil
}

// fieldPath builds a JSON path selecting a top-level member. The member name
// is quoted so names containing dots or brackets stay a single member.
func fieldPath(field string) (string, error) {
	if field == "" {
		return "", fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(field, "\"\\") {
		return "", fmt.Errorf("unsupported character in field name %q", field)
	}
	return `$."` + field + `"`, nil
}

// valueToParam converts an ir.Value to a Go native SQL parameter.
// Booleans become 1/0, matching what json_extract returns for true/false.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Number:
		return float64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
