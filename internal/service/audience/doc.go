// Package audience builds campaign recipient lists.
//
// A recipient list is a bulk segment evaluation filtered down to contacts
// that may be reached on the requested channel. Building one is a gated
// action: the tenant's tier must grant marketing tools, and SMS additionally
// needs SMS reminders.
package audience
