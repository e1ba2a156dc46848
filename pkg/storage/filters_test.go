package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blip0/blip0/pkg/apperr"
)

func TestWhereClauseTimeRange(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clauses, args, err := whereClause(monitorFilterFields,
		map[string]interface{}{"created_at_after": after}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"created_at >= $2"}, clauses)
	assert.Equal(t, []interface{}{after}, args)

	clauses, args, err = whereClause(monitorFilterFields,
		map[string]interface{}{"created_at_before": after}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"created_at <= $4"}, clauses)
	assert.Len(t, args, 1)
}

func TestWhereClauseSubstringMatch(t *testing.T) {
	clauses, args, err := whereClause(monitorFilterFields,
		map[string]interface{}{"name": "usdc"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"name ILIKE $2"}, clauses)
	assert.Equal(t, []interface{}{"%usdc%"}, args)
}

func TestWhereClauseExactMatch(t *testing.T) {
	clauses, args, err := whereClause(monitorFilterFields,
		map[string]interface{}{"slug": "usdc"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"slug = $2"}, clauses)
	assert.Equal(t, []interface{}{"usdc"}, args)
}

func TestWhereClauseInList(t *testing.T) {
	clauses, args, err := whereClause(monitorFilterFields,
		map[string]interface{}{"slug_in": []string{"a", "b"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"slug IN ($2, $3)"}, clauses)
	assert.Equal(t, []interface{}{"a", "b"}, args)

	_, _, err = whereClause(monitorFilterFields,
		map[string]interface{}{"slug_in": []string{}}, 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestWhereClauseHasPredicate(t *testing.T) {
	clauses, _, err := whereClause(monitorFilterFields,
		map[string]interface{}{"has_validated_at": true}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"last_validated_at IS NOT NULL"}, clauses)

	clauses, _, err = whereClause(monitorFilterFields,
		map[string]interface{}{"has_validated_at": false}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"last_validated_at IS NULL"}, clauses)
}

func TestWhereClauseRejectsUnknownField(t *testing.T) {
	for _, filters := range []map[string]interface{}{
		{"nope": 1},
		{"nope_in": []string{"x"}},
		{"has_nope": true},
		{"name_gte": 5},        // substring field, numeric suffix
		{"active_after": true}, // bool field, temporal suffix
	} {
		_, _, err := whereClause(monitorFilterFields, filters, 1)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	}
}

func TestOrderClause(t *testing.T) {
	order, err := orderClause(monitorSortFields, "", "")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY created_at DESC", order)

	order, err = orderClause(monitorSortFields, "name", "asc")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY name ASC", order)

	_, err = orderClause(monitorSortFields, "validated", "asc")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = orderClause(monitorSortFields, "name", "sideways")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestListOptionsNormalize(t *testing.T) {
	opts := ListOptions{Page: -3, Size: 0}
	opts.normalize()
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, 20, opts.Size)

	opts = ListOptions{Page: 4, Size: 500}
	opts.normalize()
	assert.Equal(t, 4, opts.Page)
	assert.Equal(t, 100, opts.Size)

	limit, offset := opts.limitOffset()
	assert.Equal(t, 100, limit)
	assert.Equal(t, 300, offset)
}

func TestPageMath(t *testing.T) {
	p := newPage([]int{1, 2, 3}, 45, 2, 20)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, int64(45), p.Total)

	p = newPage([]int{}, 0, 1, 20)
	assert.Equal(t, 0, p.Pages)
}

func TestSetBuilder(t *testing.T) {
	b := newSetBuilder()
	name := "new name"
	b.addIfSet("name", strArg(&name))
	b.addIfSet("slug", strArg(nil))
	b.add("updated_at", time.Now())

	assert.Equal(t, "name = $1, updated_at = $2", b.setClause())
	assert.Equal(t, 2, b.n())
}
