package storage

import (
	"fmt"
	"strings"

	"github.com/blip0/blip0/pkg/apperr"
)

// FieldKind tells the filter compiler how a column is matched.
type FieldKind int

const (
	// FieldTime supports _after / _before range suffixes.
	FieldTime FieldKind = iota
	// FieldNumber supports _gte / _lte suffixes and exact match.
	FieldNumber
	// FieldString matches by case-insensitive substring.
	FieldString
	// FieldExact matches strings exactly (slugs, emails, urls).
	FieldExact
	// FieldBool matches by equality.
	FieldBool
)

// FieldSet is the filterable column vocabulary of one entity.
type FieldSet map[string]FieldKind

// whereClause compiles the suffix filter grammar over fs into SQL
// predicates. Argument placeholders start at $startArg+1. Filter keys:
//
//	field_after / field_before   temporal range on a FieldTime column
//	field_gte / field_lte        numeric range on a FieldNumber column
//	field_in                     IN over a []string or []interface{}
//	has_X                        last_X IS [NOT] NULL by boolean value
//	field                        kind-dependent match
func whereClause(fs FieldSet, filters map[string]interface{}, startArg int) ([]string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	next := func() int { return startArg + len(args) + 1 }

	for key, value := range filters {
		switch {
		case strings.HasPrefix(key, "has_"):
			col := "last_" + strings.TrimPrefix(key, "has_")
			if _, ok := fs[col]; !ok {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "unknown filter field %q", key)
			}
			if b, ok := value.(bool); ok && !b {
				clauses = append(clauses, col+" IS NULL")
			} else {
				clauses = append(clauses, col+" IS NOT NULL")
			}

		case strings.HasSuffix(key, "_after"):
			col := strings.TrimSuffix(key, "_after")
			if fs[col] != FieldTime {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "filter %q requires a temporal field", key)
			}
			clauses = append(clauses, fmt.Sprintf("%s >= $%d", col, next()))
			args = append(args, value)

		case strings.HasSuffix(key, "_before"):
			col := strings.TrimSuffix(key, "_before")
			if fs[col] != FieldTime {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "filter %q requires a temporal field", key)
			}
			clauses = append(clauses, fmt.Sprintf("%s <= $%d", col, next()))
			args = append(args, value)

		case strings.HasSuffix(key, "_gte"):
			col := strings.TrimSuffix(key, "_gte")
			if fs[col] != FieldNumber {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "filter %q requires a numeric field", key)
			}
			clauses = append(clauses, fmt.Sprintf("%s >= $%d", col, next()))
			args = append(args, value)

		case strings.HasSuffix(key, "_lte"):
			col := strings.TrimSuffix(key, "_lte")
			if fs[col] != FieldNumber {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "filter %q requires a numeric field", key)
			}
			clauses = append(clauses, fmt.Sprintf("%s <= $%d", col, next()))
			args = append(args, value)

		case strings.HasSuffix(key, "_in"):
			col := strings.TrimSuffix(key, "_in")
			if _, ok := fs[col]; !ok {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "unknown filter field %q", key)
			}
			vals, err := toSlice(value)
			if err != nil || len(vals) == 0 {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "filter %q requires a non-empty list", key)
			}
			holes := make([]string, len(vals))
			for i, v := range vals {
				holes[i] = fmt.Sprintf("$%d", next())
				args = append(args, v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(holes, ", ")))

		default:
			kind, ok := fs[key]
			if !ok {
				return nil, nil, apperr.Ef(apperr.KindBadRequest, "unknown filter field %q", key)
			}
			switch kind {
			case FieldString:
				clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", key, next()))
				args = append(args, "%"+fmt.Sprint(value)+"%")
			default:
				clauses = append(clauses, fmt.Sprintf("%s = $%d", key, next()))
				args = append(args, value)
			}
		}
	}

	return clauses, args, nil
}

func toSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list: %T", value)
	}
}

// orderClause validates the requested sort against the entity's sortable
// columns and returns the ORDER BY expression. Defaults to created_at DESC.
func orderClause(sortable map[string]bool, field, order string) (string, error) {
	if field == "" {
		field = "created_at"
	}
	if !sortable[field] {
		return "", apperr.Ef(apperr.KindBadRequest, "unknown sort field %q", field)
	}
	switch strings.ToLower(order) {
	case "", "desc":
		order = "DESC"
	case "asc":
		order = "ASC"
	default:
		return "", apperr.Ef(apperr.KindBadRequest, "invalid sort order %q", order)
	}
	return fmt.Sprintf("ORDER BY %s %s", field, order), nil
}
