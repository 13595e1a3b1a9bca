package segmentation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ContactColumns is the column list every contact query selects, in the
// order repository scanners expect.
const ContactColumns = `c.id, c.organization_id, c.email, c.phone, c.first_name, c.last_name,
			c.email_opt_in, c.sms_opt_in, c.subscribed, c.total_spent, c.last_booking,
			c.tags, c.created_at`

// QueryBuilder builds SQL queries from segment definitions. Rules that cannot
// be compiled (unknown field, invalid operator, uncoercible value) become
// FALSE, which mirrors how Matches treats them.
type QueryBuilder struct {
	args           []interface{}
	argCounter     int
	organizationID string
	limit          int
}

// NewQueryBuilder creates a new QueryBuilder
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		args:       make([]interface{}, 0),
		argCounter: 1,
	}
}

// SetOrganizationID sets the tenant filter
func (qb *QueryBuilder) SetOrganizationID(orgID string) *QueryBuilder {
	qb.organizationID = orgID
	return qb
}

// SetLimit caps the number of rows returned by BuildQuery. Zero means no limit.
func (qb *QueryBuilder) SetLimit(limit int) *QueryBuilder {
	qb.limit = limit
	return qb
}

// nextArg returns the next argument placeholder
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

func (qb *QueryBuilder) reset() {
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1
}

// BuildQuery builds the SELECT returning every contact of the tenant that
// matches d, in storage order (created_at, id).
func (qb *QueryBuilder) BuildQuery(d Definition) (string, []interface{}, error) {
	where, err := qb.buildWhere(d)
	if err != nil {
		return "", nil, err
	}
	query := "SELECT " + ContactColumns + "\nFROM contacts c\nWHERE " + where +
		"\nORDER BY c.created_at, c.id"
	if qb.limit > 0 {
		query += fmt.Sprintf("\nLIMIT %d", qb.limit)
	}
	return query, qb.args, nil
}

// BuildCountQuery builds a COUNT query for the same predicate.
func (qb *QueryBuilder) BuildCountQuery(d Definition) (string, []interface{}, error) {
	where, err := qb.buildWhere(d)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM contacts c\nWHERE " + where, qb.args, nil
}

func (qb *QueryBuilder) buildWhere(d Definition) (string, error) {
	qb.reset()
	if qb.organizationID == "" {
		return "", ErrMissingTenant
	}
	conditions := []string{
		fmt.Sprintf("c.organization_id = %s", qb.nextArg(qb.organizationID)),
		"(" + qb.buildGroupCondition(d) + ")",
	}
	return strings.Join(conditions, "\n  AND "), nil
}

// buildGroupCondition joins the rule conditions with the combinator.
func (qb *QueryBuilder) buildGroupCondition(d Definition) string {
	var operator, empty string
	switch d.Combinator {
	case CombineAnd:
		operator, empty = " AND ", "TRUE"
	case CombineOr:
		operator, empty = " OR ", "FALSE"
	default:
		return "FALSE"
	}
	if len(d.Rules) == 0 {
		return empty
	}
	parts := make([]string, 0, len(d.Rules))
	for _, r := range d.Rules {
		parts = append(parts, "("+qb.buildCondition(r)+")")
	}
	return strings.Join(parts, operator)
}

// buildCondition builds SQL for a single rule
func (qb *QueryBuilder) buildCondition(r Rule) string {
	f, ok := LookupField(r.Field)
	if !ok {
		return "FALSE"
	}
	if f.Kind == KindTags {
		return qb.buildTagCondition(f, r)
	}
	return qb.buildScalarCondition(f, r)
}

func (qb *QueryBuilder) buildScalarCondition(f Field, r Rule) string {
	col := f.Column

	switch r.Operator {
	case OpExists:
		return col + " IS NOT NULL"
	case OpNotExists:
		return col + " IS NULL"

	case OpEquals, OpNotEquals:
		o, ok := coerce(f.Kind, r.Value)
		if !ok {
			return "FALSE"
		}
		cmp := "="
		if r.Operator == OpNotEquals {
			cmp = "<>"
		}
		// NULL <> x is NULL in SQL, which already excludes missing values.
		return fmt.Sprintf("%s %s %s", col, cmp, qb.nextArg(sqlOperand(f.Kind, o)))

	case OpContains:
		if f.Kind != KindString {
			return "FALSE"
		}
		s, ok := toString(r.Value)
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("%s ILIKE %s", col, qb.nextArg("%"+escapeLike(s)+"%"))

	case OpGreaterThan, OpLessThan:
		if f.Kind != KindNumber && f.Kind != KindTime {
			return "FALSE"
		}
		o, ok := coerce(f.Kind, r.Value)
		if !ok {
			return "FALSE"
		}
		cmp := ">"
		if r.Operator == OpLessThan {
			cmp = "<"
		}
		return fmt.Sprintf("%s %s %s", col, cmp, qb.nextArg(sqlOperand(f.Kind, o)))

	case OpIn, OpNotIn:
		list, ok := coerceList(f.Kind, r.Value)
		if !ok {
			return "FALSE"
		}
		arr := qb.nextArg(sqlArray(f.Kind, list))
		if f.Kind == KindTime {
			arr += "::timestamptz[]"
		}
		if r.Operator == OpIn {
			return fmt.Sprintf("%s = ANY(%s)", col, arr)
		}
		// <> ALL over an empty array is TRUE even for NULL, so guard it.
		return fmt.Sprintf("%s IS NOT NULL AND %s <> ALL(%s)", col, col, arr)

	default:
		return "FALSE"
	}
}

// buildTagCondition builds SQL for the tag set (text[] NOT NULL).
func (qb *QueryBuilder) buildTagCondition(f Field, r Rule) string {
	col := f.Column

	switch r.Operator {
	case OpExists:
		return fmt.Sprintf("cardinality(%s) > 0", col)
	case OpNotExists:
		return fmt.Sprintf("cardinality(%s) = 0", col)
	case OpContains:
		s, ok := toString(r.Value)
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("%s = ANY(%s)", qb.nextArg(s), col)
	case OpIn, OpNotIn:
		list, ok := coerceList(KindTags, r.Value)
		if !ok {
			return "FALSE"
		}
		arr := qb.nextArg(sqlArray(KindTags, list))
		if r.Operator == OpIn {
			return fmt.Sprintf("%s && %s::text[]", col, arr)
		}
		return fmt.Sprintf("NOT (%s && %s::text[])", col, arr)
	default:
		return "FALSE"
	}
}

func sqlOperand(kind FieldKind, o operand) interface{} {
	switch kind {
	case KindBool:
		return o.boolean
	case KindNumber:
		return o.num
	case KindTime:
		return o.at
	default:
		return o.str
	}
}

func sqlArray(kind FieldKind, list []operand) interface{} {
	switch kind {
	case KindBool:
		out := make([]bool, len(list))
		for i, o := range list {
			out[i] = o.boolean
		}
		return pq.BoolArray(out)
	case KindNumber:
		out := make([]float64, len(list))
		for i, o := range list {
			out[i] = o.num
		}
		return pq.Float64Array(out)
	case KindTime:
		out := make([]string, len(list))
		for i, o := range list {
			out[i] = o.at.UTC().Format(time.RFC3339Nano)
		}
		return pq.StringArray(out)
	default:
		out := make([]string, len(list))
		for i, o := range list {
			out[i] = o.str
		}
		return pq.StringArray(out)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// HashDefinition generates a deterministic hash of a segment definition.
// It keys cached memberships so an edited segment never reuses stale results.
func HashDefinition(d Definition, orgID string) string {
	data := struct {
		Definition Definition `json:"definition"`
		OrgID      string     `json:"org_id"`
	}{
		Definition: d,
		OrgID:      orgID,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		// Invalid operators cannot be marshaled; fall back to the Go syntax form.
		jsonBytes = []byte(fmt.Sprintf("%#v|%s", d, orgID))
	}
	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}
