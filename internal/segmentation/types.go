// Package segmentation evaluates rule-based contact segments for a tenant.
//
// A Segment is an ordered list of Rules joined by a Combinator. The same
// predicate semantics back three evaluation paths: Matches (one contact),
// Filter (an already-fetched contact set) and QueryBuilder (the bulk query
// pushed down to Postgres). Any comparison against a missing value is false.
package segmentation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator is a comparison operator. The set is closed: text decoding
// rejects unknown names, and the zero value never matches.
type Operator int

const (
	opInvalid Operator = iota
	OpEquals
	OpNotEquals
	OpContains
	OpGreaterThan
	OpLessThan
	OpIn
	OpNotIn
	OpExists
	OpNotExists
	opCount
)

var operatorNames = [opCount]string{
	opInvalid:     "",
	OpEquals:      "equals",
	OpNotEquals:   "not_equals",
	OpContains:    "contains",
	OpGreaterThan: "greater_than",
	OpLessThan:    "less_than",
	OpIn:          "in",
	OpNotIn:       "not_in",
	OpExists:      "exists",
	OpNotExists:   "not_exists",
}

// Operators returns every valid operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, 0, opCount-1)
	for op := OpEquals; op < opCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// ParseOperator maps a wire name to an Operator.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op := OpEquals; op < opCount; op++ {
		if operatorNames[op] == name {
			return op, nil
		}
	}
	return opInvalid, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Valid reports whether o is one of the declared operators.
func (o Operator) Valid() bool { return o > opInvalid && o < opCount }

func (o Operator) String() string {
	if !o.Valid() {
		return fmt.Sprintf("operator(%d)", int(o))
	}
	return operatorNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, int(o))
	}
	return []byte(operatorNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operator) UnmarshalText(b []byte) error {
	op, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// needsValue reports whether the operator compares against Rule.Value.
func (o Operator) needsValue() bool { return o != OpExists && o != OpNotExists }

// needsList reports whether Rule.Value must be a list.
func (o Operator) needsList() bool { return o == OpIn || o == OpNotIn }

// ==========================================
// COMBINATOR
// ==========================================

// Combinator joins rule results. The zero value is AND.
type Combinator int

const (
	CombineAnd Combinator = iota
	CombineOr
)

// ParseCombinator accepts "AND"/"OR" in any case; empty means AND.
func ParseCombinator(s string) (Combinator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return CombineAnd, nil
	case "OR":
		return CombineOr, nil
	default:
		return CombineAnd, fmt.Errorf("%w: %q", ErrUnknownCombinator, s)
	}
}

func (c Combinator) String() string {
	switch c {
	case CombineAnd:
		return "AND"
	case CombineOr:
		return "OR"
	default:
		return fmt.Sprintf("combinator(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Combinator) MarshalText() ([]byte, error) {
	if c != CombineAnd && c != CombineOr {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCombinator, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Combinator) UnmarshalText(b []byte) error {
	v, err := ParseCombinator(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ==========================================
// SEGMENT STRUCTURES
// ==========================================

// Rule is a single predicate over one contact field.
type Rule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Segment is a named rule set evaluated against one organization's contacts.
// It is recomputed on demand and never materialized.
type Segment struct {
	ID             string     `json:"id,omitempty" db:"id"`
	OrganizationID string     `json:"organization_id,omitempty" db:"organization_id"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description,omitempty" db:"description"`
	Rules          []Rule     `json:"rules" db:"rules"`
	Combinator     Combinator `json:"combinator" db:"combinator"`
	CreatedAt      time.Time  `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}

// Definition is the part of a segment that determines membership.
type Definition struct {
	Rules      []Rule     `json:"rules"`
	Combinator Combinator `json:"combinator"`
}

// Definition returns the membership-relevant part of s.
func (s Segment) Definition() Definition {
	return Definition{Rules: s.Rules, Combinator: s.Combinator}
}

// MarshalRules encodes a segment definition for JSONB storage.
func MarshalRules(d Definition) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalRules decodes a definition stored by MarshalRules.
func UnmarshalRules(data []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// ==========================================
// RESULTS
// ==========================================

// Membership is one segment a contact currently belongs to.
type Membership struct {
	SegmentID   string `json:"segment_id"`
	SegmentName string `json:"segment_name"`
}

// Preview is a quick look at a segment's size plus a sample.
type Preview struct {
	Count        int              `json:"count"`
	Sample       []ContactPreview `json:"sample"`
	CalculatedAt time.Time        `json:"calculated_at"`
}

// ContactPreview is a minimal contact representation for previews.
type ContactPreview struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ==========================================
// OPERATOR METADATA
// ==========================================

// OperatorMetadata describes an operator for segment-builder UIs.
type OperatorMetadata struct {
	Operator        Operator    `json:"operator"`
	Label           string      `json:"label"`
	Description     string      `json:"description"`
	ApplicableKinds []FieldKind `json:"applicable_kinds"`
	RequiresValue   bool        `json:"requires_value"`
	RequiresList    bool        `json:"requires_list"`
}

// GetOperatorMetadata returns metadata for all operators.
func GetOperatorMetadata() []OperatorMetadata {
	scalars := []FieldKind{KindString, KindBool, KindNumber, KindTime}
	ordered := []FieldKind{KindNumber, KindTime}
	all := []FieldKind{KindString, KindBool, KindNumber, KindTime, KindTags}
	return []OperatorMetadata{
		{OpEquals, "Equals", "Exact match", scalars, true, false},
		{OpNotEquals, "Does not equal", "Has a value that is not an exact match", scalars, true, false},
		{OpContains, "Contains", "Text contains the value, or the tag set includes it", []FieldKind{KindString, KindTags}, true, false},
		{OpGreaterThan, "Greater than", "Number or date is after the value", ordered, true, false},
		{OpLessThan, "Less than", "Number or date is before the value", ordered, true, false},
		{OpIn, "Is any of", "Value is one of the listed values", all, true, true},
		{OpNotIn, "Is none of", "Has a value that is not one of the listed values", all, true, true},
		{OpExists, "Exists", "Field has a value", all, false, false},
		{OpNotExists, "Does not exist", "Field is empty or missing", all, false, false},
	}
}

func getOperatorMeta(op Operator) *OperatorMetadata {
	for _, meta := range GetOperatorMetadata() {
		if meta.Operator == op {
			return &meta
		}
	}
	return nil
}

// GetAvailableOperators returns operators available for a field kind.
func GetAvailableOperators(kind FieldKind) []OperatorMetadata {
	var operators []OperatorMetadata
	for _, meta := range GetOperatorMetadata() {
		for _, k := range meta.ApplicableKinds {
			if k == kind {
				operators = append(operators, meta)
				break
			}
		}
	}
	return operators
}
