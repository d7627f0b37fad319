package documentdb

import (
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var sqlOps = map[Op]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

// sqlBuilder accumulates positional arguments.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func fieldExpr(alias, field string) (string, bool, error) {
	switch field {
	case FieldID:
		return alias + ".id", true, nil
	case FieldCreateTime:
		return alias + ".created_at", true, nil
	case FieldUpdateTime:
		return alias + ".updated_at", true, nil
	}
	if !fieldNamePattern.MatchString(field) {
		return "", false, status.Errorf(codes.InvalidArgument, "invalid field name %q", field)
	}
	return fmt.Sprintf("%s.data->'%s'", alias, field), false, nil
}

func (b *sqlBuilder) where(q Query) (string, error) {
	if q.Collection == "" {
		return "", status.Error(codes.InvalidArgument, "query requires a collection")
	}

	conds := []string{"d.collection = " + b.arg(q.Collection)}
	for _, f := range q.Filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", status.Errorf(codes.InvalidArgument, "unsupported operator %q", f.Op)
		}
		expr, meta, err := fieldExpr("d", f.Field)
		if err != nil {
			return "", err
		}

		if meta {
			v, err := normalizeValue(f.Field, f.Value)
			if err != nil {
				return "", err
			}
			conds = append(conds, fmt.Sprintf("%s %s %s", expr, op, b.arg(v)))
			continue
		}

		raw, err := encodeValue(f.Value)
		if err != nil {
			return "", err
		}
		if f.Op == OpNotEqual {
			// Documents without the field match != like in the memory store.
			conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s %s %s::jsonb)", expr, expr, op, b.arg(raw)))
			continue
		}
		// jsonb only orders values of the same type; a type check keeps a
		// string bound from matching numbers.
		p := b.arg(raw)
		conds = append(conds, fmt.Sprintf("(jsonb_typeof(%s) = jsonb_typeof(%s::jsonb) AND %s %s %s::jsonb)", expr, p, expr, op, p))
	}
	return strings.Join(conds, " AND "), nil
}

// keyset returns the condition selecting rows strictly after the cursor row
// aliased c, under the ordering orders then id.
func keyset(orders []Order) (string, error) {
	type key struct{ d, c, cmp string }

	keys := make([]key, 0, len(orders)+1)
	idDir := Asc
	for _, o := range orders {
		d, _, err := fieldExpr("d", o.Field)
		if err != nil {
			return "", err
		}
		c, _, _ := fieldExpr("c", o.Field)
		cmp := ">"
		if o.Direction == Desc {
			cmp = "<"
		}
		keys = append(keys, key{d, c, cmp})
		idDir = o.Direction
	}
	idCmp := ">"
	if idDir == Desc {
		idCmp = "<"
	}
	keys = append(keys, key{"d.id", "c.id", idCmp})

	alternatives := make([]string, 0, len(keys))
	for i := range keys {
		parts := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			parts = append(parts, fmt.Sprintf("%s = %s", keys[j].d, keys[j].c))
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", keys[i].d, keys[i].cmp, keys[i].c))
		alternatives = append(alternatives, "("+strings.Join(parts, " AND ")+")")
	}
	return "(" + strings.Join(alternatives, " OR ") + ")", nil
}

func orderClause(orders []Order) (string, error) {
	parts := make([]string, 0, len(orders)+1)
	idDir := "ASC"
	for _, o := range orders {
		expr, _, err := fieldExpr("d", o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Direction == Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
		idDir = dir
	}
	parts = append(parts, "d.id "+idDir)
	return strings.Join(parts, ", "), nil
}

func buildSelect(q Query) (string, []any, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return "", nil, status.Error(codes.InvalidArgument, "limit and offset must not be negative")
	}

	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	if q.StartAfter != "" {
		// $1 is the collection, bound by where.
		fmt.Fprintf(&sb, "WITH c AS (SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = %s) ",
			b.arg(q.StartAfter))
		sb.WriteString("SELECT d.id, d.data, d.created_at, d.updated_at, d.version FROM documents d CROSS JOIN c WHERE ")
		sb.WriteString(where)
		ks, err := keyset(q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND " + ks)
	} else {
		sb.WriteString("SELECT d.id, d.data, d.created_at, d.updated_at, d.version FROM documents d WHERE ")
		sb.WriteString(where)
	}

	order, err := orderClause(q.OrderBy)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(" ORDER BY " + order)

	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + b.arg(q.Offset))
	}
	return sb.String(), b.args, nil
}

func buildCount(q Query) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM documents d WHERE " + where, b.args, nil
}
