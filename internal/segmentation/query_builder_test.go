package segmentation

import (
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whereOf(t *testing.T, d Definition) (string, []interface{}) {
	t.Helper()
	query, args, err := NewQueryBuilder().SetOrganizationID(testOrgID).BuildCountQuery(d)
	require.NoError(t, err)
	idx := strings.Index(query, "AND (")
	require.GreaterOrEqual(t, idx, 0, query)
	return query[idx+len("AND "):], args
}

func TestBuildQuery_RequiresTenant(t *testing.T) {
	_, _, err := NewQueryBuilder().BuildQuery(Definition{})
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, _, err = NewQueryBuilder().BuildCountQuery(Definition{})
	assert.ErrorIs(t, err, ErrMissingTenant)
}

func TestBuildQuery_Shape(t *testing.T) {
	d := Definition{Rules: []Rule{
		{Field: "totalSpent", Operator: OpGreaterThan, Value: 500},
		{Field: "tags", Operator: OpContains, Value: "vip"},
	}}
	query, args, err := NewQueryBuilder().SetOrganizationID(testOrgID).SetLimit(25).BuildQuery(d)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "SELECT c.id, c.organization_id"))
	assert.Contains(t, query, "FROM contacts c")
	assert.Contains(t, query, "c.organization_id = $1")
	assert.Contains(t, query, "((c.total_spent > $2) AND ($3 = ANY(c.tags)))")
	assert.Contains(t, query, "ORDER BY c.created_at, c.id")
	assert.True(t, strings.HasSuffix(query, "LIMIT 25"))
	assert.Equal(t, []interface{}{testOrgID, float64(500), "vip"}, args)
}

func TestBuildQuery_EmptyRules(t *testing.T) {
	where, args := whereOf(t, Definition{Combinator: CombineAnd})
	assert.Equal(t, "(TRUE)", where)
	assert.Len(t, args, 1)

	where, _ = whereOf(t, Definition{Combinator: CombineOr})
	assert.Equal(t, "(FALSE)", where)
}

func TestBuildQuery_UncompilableRulesAreFalse(t *testing.T) {
	d := Definition{Combinator: CombineOr, Rules: []Rule{
		{Field: "nope", Operator: OpEquals, Value: "x"},
		{Field: "email", Operator: Operator(99), Value: "x"},
		{Field: "totalSpent", Operator: OpGreaterThan, Value: "lots"},
		{Field: "email", Operator: OpGreaterThan, Value: "a"},
		{Field: "tags", Operator: OpEquals, Value: "vip"},
		{Field: "phone", Operator: OpIn, Value: "+1555"},
	}}
	where, args := whereOf(t, d)
	assert.Equal(t, "((FALSE) OR (FALSE) OR (FALSE) OR (FALSE) OR (FALSE) OR (FALSE))", where)
	assert.Len(t, args, 1)
}

func TestBuildQuery_Operators(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		sql  string
		arg  interface{}
	}{
		{"equals", Rule{Field: "email", Operator: OpEquals, Value: "a@b.co"}, "c.email = $2", "a@b.co"},
		{"not equals bool", Rule{Field: "smsOptIn", Operator: OpNotEquals, Value: "true"}, "c.sms_opt_in <> $2", true},
		{"contains escapes", Rule{Field: "firstName", Operator: OpContains, Value: `50%_off\`}, "c.first_name ILIKE $2", `%50\%\_off\\%`},
		{"less than", Rule{Field: "total_spent", Operator: OpLessThan, Value: "99.5"}, "c.total_spent < $2", 99.5},
		{"exists", Rule{Field: "phone", Operator: OpExists}, "c.phone IS NOT NULL", nil},
		{"not exists", Rule{Field: "lastBooking", Operator: OpNotExists}, "c.last_booking IS NULL", nil},
		{"in", Rule{Field: "firstName", Operator: OpIn, Value: []any{"Ana", 3, "Ben"}}, "c.first_name = ANY($2)", pq.StringArray{"Ana", "Ben"}},
		{"not in", Rule{Field: "totalSpent", Operator: OpNotIn, Value: []any{10, "20"}}, "c.total_spent IS NOT NULL AND c.total_spent <> ALL($2)", pq.Float64Array{10, 20}},
		{"tags in", Rule{Field: "tags", Operator: OpIn, Value: []string{"vip"}}, "c.tags && $2::text[]", pq.StringArray{"vip"}},
		{"tags not in", Rule{Field: "tags", Operator: OpNotIn, Value: []string{"vip"}}, "NOT (c.tags && $2::text[])", pq.StringArray{"vip"}},
		{"tags exists", Rule{Field: "tags", Operator: OpExists}, "cardinality(c.tags) > 0", nil},
		{"tags not exists", Rule{Field: "tags", Operator: OpNotExists}, "cardinality(c.tags) = 0", nil},
		{"time in", Rule{Field: "createdAt", Operator: OpIn, Value: []any{"2026-01-02"}}, "c.created_at = ANY($2::timestamptz[])", pq.StringArray{"2026-01-02T00:00:00Z"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			where, args := whereOf(t, Definition{Rules: []Rule{tc.rule}})
			assert.Equal(t, "(("+tc.sql+"))", where)
			if tc.arg == nil {
				assert.Len(t, args, 1)
				return
			}
			require.Len(t, args, 2)
			assert.Equal(t, tc.arg, args[1])
		})
	}
}

func TestBuildQuery_ReusableBuilder(t *testing.T) {
	qb := NewQueryBuilder().SetOrganizationID(testOrgID)
	d := Definition{Rules: []Rule{{Field: "email", Operator: OpEquals, Value: "x@y.z"}}}

	_, first, err := qb.BuildCountQuery(d)
	require.NoError(t, err)
	_, second, err := qb.BuildQuery(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashDefinition(t *testing.T) {
	d := Definition{Rules: []Rule{{Field: "tags", Operator: OpContains, Value: "vip"}}}

	assert.Equal(t, HashDefinition(d, "org-1"), HashDefinition(d, "org-1"))
	assert.NotEqual(t, HashDefinition(d, "org-1"), HashDefinition(d, "org-2"))

	edited := Definition{Rules: []Rule{{Field: "tags", Operator: OpContains, Value: "new"}}}
	assert.NotEqual(t, HashDefinition(d, "org-1"), HashDefinition(edited, "org-1"))

	bad := Definition{Rules: []Rule{{Field: "tags", Operator: Operator(50)}}}
	assert.Len(t, HashDefinition(bad, "org-1"), 64)
}
