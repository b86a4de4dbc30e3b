package domain

import "strings"

// Contact type codes as they appear in the booking extract.
const (
	TypeEmail        = "APE"
	TypeMobile       = "APM"
	TypeHome         = "APH"
	TypeBusiness     = "APB"
	TypeFax          = "APF"
	TypeGeneric      = "AP"
	TypeNotification = "APN"
	TypeAgency       = "APA"
	TypeSSREmail     = "CTCE"
	TypeSSRMobile    = "CTCM"
	TypeSSRHome      = "CTCH"
	TypeSSRBusiness  = "CTCB"
	TypeSSRContact   = "CTC"
)

var (
	emailTypes = map[string]struct{}{
		TypeEmail: {}, TypeSSREmail: {},
	}
	phoneTypes = map[string]struct{}{
		TypeMobile: {}, TypeHome: {}, TypeBusiness: {}, TypeFax: {},
		TypeSSRMobile: {}, TypeSSRHome: {}, TypeSSRBusiness: {},
	}
	// generic fields may legitimately hold either an email or a phone
	genericTypes = map[string]struct{}{
		TypeGeneric: {}, TypeNotification: {}, TypeAgency: {}, TypeSSRContact: {},
	}
)

// NormalizeContactType trims and upper-cases a raw type code.
func NormalizeContactType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func IsGenericType(t string) bool {
	_, ok := genericTypes[NormalizeContactType(t)]
	return ok
}

// IsEmailEligible reports whether an email is allowed in a field of type t.
func IsEmailEligible(t string) bool {
	t = NormalizeContactType(t)
	_, ok := emailTypes[t]
	return ok || IsGenericType(t)
}

// IsPhoneEligible reports whether a phone number is allowed in a field of type t.
func IsPhoneEligible(t string) bool {
	t = NormalizeContactType(t)
	_, ok := phoneTypes[t]
	return ok || IsGenericType(t)
}

// IsKnownType reports whether t declares an intent at all.
func IsKnownType(t string) bool {
	return IsEmailEligible(t) || IsPhoneEligible(t)
}
