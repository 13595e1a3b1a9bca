package segmentation

import (
	"fmt"
	"strings"

	"github.com/ignite/studio-platform/internal/domain"
)

// ==========================================
// SINGLE-CONTACT EVALUATION
// ==========================================

// Matches reports whether the contact satisfies the segment definition.
// An empty rule list matches everything under AND and nothing under OR.
func Matches(c *domain.Contact, d Definition) bool {
	switch d.Combinator {
	case CombineAnd:
		for _, r := range d.Rules {
			if !MatchRule(c, r) {
				return false
			}
		}
		return true
	case CombineOr:
		for _, r := range d.Rules {
			if MatchRule(c, r) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchRule evaluates one rule. Unknown fields, invalid operators, missing
// field values and values that cannot be compared all evaluate to false.
func MatchRule(c *domain.Contact, r Rule) bool {
	f, ok := LookupField(r.Field)
	if !ok {
		return false
	}
	return apply(f.Kind, r.Operator, f.get(c), r.Value)
}

// Filter returns the contacts matching d, preserving input order. It is the
// in-memory bulk mode and is built on the same predicate as Matches.
func Filter(contacts []domain.Contact, d Definition) []domain.Contact {
	out := make([]domain.Contact, 0)
	for i := range contacts {
		if Matches(&contacts[i], d) {
			out = append(out, contacts[i])
		}
	}
	return out
}

func apply(kind FieldKind, op Operator, v value, raw any) bool {
	switch op {
	case OpExists:
		if kind == KindTags {
			return len(v.tags) > 0
		}
		return v.present
	case OpNotExists:
		if kind == KindTags {
			return len(v.tags) == 0
		}
		return !v.present
	}

	if !v.present {
		return false
	}

	switch op {
	case OpEquals:
		eq, ok := equal(kind, v, raw)
		return ok && eq
	case OpNotEquals:
		eq, ok := equal(kind, v, raw)
		return ok && !eq
	case OpContains:
		return contains(kind, v, raw)
	case OpGreaterThan:
		cmp, ok := order(kind, v, raw)
		return ok && cmp > 0
	case OpLessThan:
		cmp, ok := order(kind, v, raw)
		return ok && cmp < 0
	case OpIn:
		found, ok := member(kind, v, raw)
		return ok && found
	case OpNotIn:
		found, ok := member(kind, v, raw)
		return ok && !found
	default:
		return false
	}
}

// equal compares a scalar field value with the raw rule value. ok is false
// when the comparison is not defined (tag sets, uncoercible values).
func equal(kind FieldKind, v value, raw any) (eq bool, ok bool) {
	if kind == KindTags {
		return false, false
	}
	o, ok := coerce(kind, raw)
	if !ok {
		return false, false
	}
	return equalOperand(kind, v, o), true
}

func equalOperand(kind FieldKind, v value, o operand) bool {
	switch kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber:
		return v.num == o.num
	case KindTime:
		return v.at.Equal(o.at)
	default:
		return false
	}
}

func contains(kind FieldKind, v value, raw any) bool {
	s, ok := toString(raw)
	if !ok {
		return false
	}
	switch kind {
	case KindTags:
		for _, t := range v.tags {
			if t == s {
				return true
			}
		}
		return false
	case KindString:
		return strings.Contains(strings.ToLower(v.str), strings.ToLower(s))
	default:
		return false
	}
}

// order compares numbers as numbers and times chronologically.
func order(kind FieldKind, v value, raw any) (int, bool) {
	if kind != KindNumber && kind != KindTime {
		return 0, false
	}
	o, ok := coerce(kind, raw)
	if !ok {
		return 0, false
	}
	if kind == KindNumber {
		switch {
		case v.num > o.num:
			return 1, true
		case v.num < o.num:
			return -1, true
		default:
			return 0, true
		}
	}
	return v.at.Compare(o.at), true
}

// member tests list membership. For tag sets it reports any overlap.
func member(kind FieldKind, v value, raw any) (bool, bool) {
	list, ok := coerceList(kind, raw)
	if !ok {
		return false, false
	}
	if kind == KindTags {
		for _, t := range v.tags {
			for _, o := range list {
				if t == o.str {
					return true, true
				}
			}
		}
		return false, true
	}
	for _, o := range list {
		if equalOperand(kind, v, o) {
			return true, true
		}
	}
	return false, true
}

// ==========================================
// VALIDATION
// ==========================================

// Validate reports rules that can never match as written: unknown fields,
// operators that do not apply to the field's kind, and values of the wrong
// shape. It does not change evaluation; such rules still evaluate to false.
func Validate(d Definition) []error {
	var errs []error
	if d.Combinator != CombineAnd && d.Combinator != CombineOr {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownCombinator, d.Combinator))
	}
	for i, r := range d.Rules {
		if err := validateRule(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.Field, err))
		}
	}
	return errs
}

func validateRule(r Rule) error {
	f, ok := LookupField(r.Field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, r.Field)
	}
	meta := getOperatorMeta(r.Operator)
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrUnknownOperator, r.Operator)
	}
	applicable := false
	for _, k := range meta.ApplicableKinds {
		if k == f.Kind {
			applicable = true
			break
		}
	}
	if !applicable {
		return fmt.Errorf("%w: operator %s does not apply to %s field", ErrInvalidRule, r.Operator, f.Kind)
	}
	if !r.Operator.needsValue() {
		return nil
	}
	if r.Operator.needsList() {
		list, ok := toList(r.Value)
		if !ok {
			return fmt.Errorf("%w: operator %s requires a list value", ErrInvalidRule, r.Operator)
		}
		for _, item := range list {
			if _, ok := coerce(f.Kind, item); !ok {
				return fmt.Errorf("%w: list item %v is not a valid %s", ErrInvalidRule, item, f.Kind)
			}
		}
		return nil
	}
	kind := f.Kind
	if r.Operator == OpContains {
		kind = KindString
	}
	if _, ok := coerce(kind, r.Value); !ok {
		return fmt.Errorf("%w: value %v is not a valid %s", ErrInvalidRule, r.Value, kind)
	}
	return nil
}
