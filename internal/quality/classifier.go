package quality

import (
	"strings"

	"pnr_quality/internal/domain"
)

// Classification is the per-contact verdict. The four facets are independent.
type Classification struct {
	ContactType     string `json:"contact_type"`
	ContactDetail   string `json:"contact_detail"`
	IsValidEmail    bool   `json:"is_valid_email"`
	IsValidPhone    bool   `json:"is_valid_phone"`
	IsWronglyPlaced bool   `json:"is_wrongly_placed"`
	HasWrongFormat  bool   `json:"has_wrong_format"`
}

// Reachable reports a correctly placed, validly formatted contact.
func (c Classification) Reachable() bool { return c.IsValidEmail || c.IsValidPhone }

// Classify evaluates one raw contact against its declared field type.
func Classify(contactType, detail string) Classification {
	out := Classification{ContactType: contactType, ContactDetail: detail}

	emailOK := domain.IsEmailEligible(contactType)
	phoneOK := domain.IsPhoneEligible(contactType)
	looksEmail := LooksLikeEmail(detail)
	looksPhone := LooksLikePhone(detail)

	out.IsValidEmail = emailOK && looksEmail
	out.IsValidPhone = phoneOK && looksPhone

	known := domain.IsKnownType(contactType)
	if known && !domain.IsGenericType(contactType) {
		out.IsWronglyPlaced = (looksEmail && !emailOK) || (looksPhone && !phoneOK)
	}
	if known && strings.TrimSpace(detail) != "" {
		out.HasWrongFormat = !looksEmail && !looksPhone
	}
	return out
}

// ClassifyContact is Classify over a stored contact.
func ClassifyContact(c domain.Contact) Classification {
	return Classify(c.ContactType, c.ContactDetail)
}
