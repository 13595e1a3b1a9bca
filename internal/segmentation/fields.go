package segmentation

import (
	"sort"
	"strings"
	"time"

	"github.com/ignite/studio-platform/internal/domain"
)

// FieldKind is the data type of a segmentable contact field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindBool   FieldKind = "boolean"
	KindNumber FieldKind = "number"
	KindTime   FieldKind = "datetime"
	KindTags   FieldKind = "tags"
)

// Field is a contact attribute that rules may reference.
type Field struct {
	Name   string    `json:"name"`
	Column string    `json:"-"`
	Kind   FieldKind `json:"kind"`

	get func(c *domain.Contact) value
}

var fieldRegistry = []Field{
	{Name: "email", Column: "c.email", Kind: KindString, get: func(c *domain.Contact) value { return stringValue(c.Email) }},
	{Name: "phone", Column: "c.phone", Kind: KindString, get: func(c *domain.Contact) value { return optStringValue(c.Phone) }},
	{Name: "firstName", Column: "c.first_name", Kind: KindString, get: func(c *domain.Contact) value { return optStringValue(c.FirstName) }},
	{Name: "lastName", Column: "c.last_name", Kind: KindString, get: func(c *domain.Contact) value { return optStringValue(c.LastName) }},
	{Name: "emailOptIn", Column: "c.email_opt_in", Kind: KindBool, get: func(c *domain.Contact) value { return boolValue(c.EmailOptIn) }},
	{Name: "smsOptIn", Column: "c.sms_opt_in", Kind: KindBool, get: func(c *domain.Contact) value { return boolValue(c.SMSOptIn) }},
	{Name: "subscribed", Column: "c.subscribed", Kind: KindBool, get: func(c *domain.Contact) value { return boolValue(c.Subscribed) }},
	{Name: "totalSpent", Column: "c.total_spent", Kind: KindNumber, get: func(c *domain.Contact) value { return optNumberValue(c.TotalSpent) }},
	{Name: "lastBooking", Column: "c.last_booking", Kind: KindTime, get: func(c *domain.Contact) value { return optTimeValue(c.LastBooking) }},
	{Name: "createdAt", Column: "c.created_at", Kind: KindTime, get: func(c *domain.Contact) value { return timeValue(c.CreatedAt) }},
	{Name: "tags", Column: "c.tags", Kind: KindTags, get: func(c *domain.Contact) value { return tagsValue(c.Tags) }},
}

var fieldIndex = buildFieldIndex()

func buildFieldIndex() map[string]int {
	idx := make(map[string]int, len(fieldRegistry)*2)
	for i, f := range fieldRegistry {
		idx[strings.ToLower(f.Name)] = i
		idx[strings.TrimPrefix(f.Column, "c.")] = i
	}
	return idx
}

// LookupField resolves a rule field name. Both camelCase ("totalSpent") and
// column names ("total_spent") are accepted, case-insensitively.
func LookupField(name string) (Field, bool) {
	i, ok := fieldIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Field{}, false
	}
	return fieldRegistry[i], true
}

// Fields lists the segmentable fields sorted by name.
func Fields() []Field {
	out := make([]Field, len(fieldRegistry))
	copy(out, fieldRegistry)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// value is a contact field read for comparison. present is false for SQL
// NULLs; tag sets are always present.
type value struct {
	present bool
	str     string
	boolean bool
	num     float64
	at      time.Time
	tags    []string
}

func stringValue(s string) value { return value{present: true, str: s} }

func optStringValue(s *string) value {
	if s == nil {
		return value{}
	}
	return value{present: true, str: *s}
}

func boolValue(b bool) value { return value{present: true, boolean: b} }

func optNumberValue(n *float64) value {
	if n == nil {
		return value{}
	}
	return value{present: true, num: *n}
}

func timeValue(t time.Time) value { return value{present: true, at: t} }

func optTimeValue(t *time.Time) value {
	if t == nil {
		return value{}
	}
	return value{present: true, at: *t}
}

func tagsValue(tags []string) value { return value{present: true, tags: tags} }
