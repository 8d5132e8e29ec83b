package query

import (
	"fmt"
	"regexp"
	"strings"
)

var jsonPathPattern = regexp.MustCompile(`^\$(\.[A-Za-z_][A-Za-z0-9_]*)+$`)

// Compile converts a filter into a parameterized commit query.
// Returns (sql, params, error).
//
// MANDATORY: Every query includes ORDER BY c.seq DESC.
// MANDATORY: All values are parameterized (never interpolated).
func Compile(f Filter) (string, []any, error) {
	if err := f.Validate(); err != nil {
		return "", nil, err
	}

	where, params, err := compilePredicate(f.Predicate(), commitColumns)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(CommitColumns)
	sb.WriteString(" FROM commits c")
	if where != "1 = 1" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY c.seq DESC")

	if limit := f.EffectiveLimit(); limit != NoLimit {
		sb.WriteString(" LIMIT ?")
		params = append(params, limit)
	}
	return sb.String(), params, nil
}

// CompilePredicate compiles a predicate over commits to a WHERE fragment.
func CompilePredicate(p Predicate) (string, []any, error) {
	return compilePredicate(p, commitColumns)
}

// compilePredicate compiles p with columns restricted to the given scope.
func compilePredicate(p Predicate, scope map[string]bool) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case Equals:
		if err := checkColumn(pred.Column, scope); err != nil {
			return "", nil, err
		}
		return pred.Column + " = ?", []any{pred.Value}, nil

	case JSONEquals:
		if err := checkColumn(pred.Column, scope); err != nil {
			return "", nil, err
		}
		if !jsonPathPattern.MatchString(pred.Path) {
			return "", nil, fmt.Errorf("invalid json path %q", pred.Path)
		}
		// Path is validated above; it is embedded so SQLite can use it as a literal.
		return fmt.Sprintf("json_extract(%s, '%s') = ?", pred.Column, pred.Path), []any{pred.Value}, nil

	case AtLeast:
		if err := checkColumn(pred.Column, scope); err != nil {
			return "", nil, err
		}
		return pred.Column + " >= ?", []any{pred.Value}, nil

	case AtMost:
		if err := checkColumn(pred.Column, scope); err != nil {
			return "", nil, err
		}
		return pred.Column + " <= ?", []any{pred.Value}, nil

	case And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1", scope)

	case Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0", scope)

	case HasChange:
		if !scope[ColHash] {
			return "", nil, fmt.Errorf("HasChange is only valid over commits")
		}
		inner, params, err := compilePredicate(pred.Filter, changeColumns)
		if err != nil {
			return "", nil, err
		}
		sql := "EXISTS (SELECT 1 FROM changes ch WHERE ch.commit_hash = c.hash"
		if inner != "1 = 1" {
			sql += " AND " + inner
		}
		return sql + ")", params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileJunction(preds []Predicate, op, empty string, scope map[string]bool) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	var parts []string
	var params []any
	for _, p := range preds {
		sql, ps, err := compilePredicate(p, scope)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, op) + ")", params, nil
}

func checkColumn(column string, scope map[string]bool) error {
	if !scope[column] {
		return fmt.Errorf("column %q is not allowed here", column)
	}
	return nil
}
