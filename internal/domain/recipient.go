package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	// DefaultGreetingName is used for personalization when a recipient has no name.
	DefaultGreetingName = "Valued Customer"
	// UnknownRecipientName is reported in results for recipients without a name.
	UnknownRecipientName = "Unknown"
)

// Recipient is one row of recipient input.
type Recipient struct {
	Email   string
	Name    string
	Subject string
	// Fields holds every column of the source row except email and name.
	Fields map[string]string
}

// RecipientFromRecord builds a Recipient from a column->value row.
func RecipientFromRecord(record map[string]string) Recipient {
	r := Recipient{
		Fields: make(map[string]string, len(record)),
	}

	for key, value := range record {
		switch key {
		case "email":
			r.Email = strings.TrimSpace(value)
		case "name":
			r.Name = strings.TrimSpace(value)
		default:
			r.Fields[key] = value
		}
	}
	r.Subject = strings.TrimSpace(record["subject"])

	return r
}

func (r Recipient) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	// ParseAddress also accepts "Name <addr>"; only a bare address is valid.
	parsed, err := mail.ParseAddress(r.Email)
	if err != nil || parsed.Address != r.Email {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, r.Email)
	}
	return nil
}

// DisplayName is the name reported in results and failure records.
func (r Recipient) DisplayName() string {
	if r.Name == "" {
		return UnknownRecipientName
	}
	return r.Name
}

// FirstName returns the first whitespace-delimited token of the name.
func (r Recipient) FirstName() string {
	parts := strings.Fields(r.Name)
	if len(parts) == 0 {
		return DefaultGreetingName
	}
	return parts[0]
}

// Personalization returns the substitution variables for this recipient.
// Extra fields are applied last and may override the derived first_name.
func (r Recipient) Personalization() map[string]string {
	name := r.Name
	if name == "" {
		name = DefaultGreetingName
	}

	vars := map[string]string{
		"name":       name,
		"email":      r.Email,
		"first_name": r.FirstName(),
	}
	for key, value := range r.Fields {
		vars[key] = value
	}

	return vars
}
