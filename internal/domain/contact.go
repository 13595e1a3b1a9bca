package domain

import (
	"strings"
	"time"
)

// Contact is a marketing-reachable person (customer or lead) that belongs to
// exactly one organization. Contacts are unique per (OrganizationID, Email)
// and are never hard-deleted; they are flagged unsubscribed instead.
type Contact struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Email          string `json:"email" db:"email"`

	Phone     *string `json:"phone,omitempty" db:"phone"`
	FirstName *string `json:"first_name,omitempty" db:"first_name"`
	LastName  *string `json:"last_name,omitempty" db:"last_name"`

	EmailOptIn bool `json:"email_opt_in" db:"email_opt_in"`
	SMSOptIn   bool `json:"sms_opt_in" db:"sms_opt_in"`
	Subscribed bool `json:"subscribed" db:"subscribed"`

	// Derived from booking history by the periodic resync.
	TotalSpent  *float64   `json:"total_spent,omitempty" db:"total_spent"`
	LastBooking *time.Time `json:"last_booking,omitempty" db:"last_booking"`

	Tags      []string  `json:"tags" db:"tags"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName returns "First Last" when known, falling back to the email.
func (c *Contact) DisplayName() string {
	var parts []string
	if c.FirstName != nil && *c.FirstName != "" {
		parts = append(parts, *c.FirstName)
	}
	if c.LastName != nil && *c.LastName != "" {
		parts = append(parts, *c.LastName)
	}
	if len(parts) == 0 {
		return c.Email
	}
	return strings.Join(parts, " ")
}

// Reachable reports whether the contact may receive marketing on the channel.
func (c *Contact) Reachable(ch Channel) bool {
	if !c.Subscribed {
		return false
	}
	switch ch {
	case ChannelEmail:
		return c.EmailOptIn && c.Email != ""
	case ChannelSMS:
		return c.SMSOptIn && c.Phone != nil && *c.Phone != ""
	default:
		return false
	}
}

// Channel enumerates the marketing delivery channels.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)
