package quality

import (
	"regexp"
	"strings"
)

// The booking system embeds routing and language metadata inside the contact
// string itself. Both grammars share the same optional affixes; an affix is
// stripped when present and never required.
//
//	carrier prefix   KQ/M+      two or three letters, '/', one letter, '+'
//	language suffix  /EN        '/', two letters, at the end
//	letter suffix    -H         '-', one letter, at the end
var (
	carrierPrefix  = regexp.MustCompile(`^[A-Z]{2,3}/[A-Z]\+`)
	languageSuffix = regexp.MustCompile(`/[A-Z]{2}$`)
	letterSuffix   = regexp.MustCompile(`-[A-Z]$`)
)

// Email grammar, applied after affixes are stripped and the airline escapes
// are rewritten:
//
//	separator   '@', or '//' when no '@' is present
//	dash escape './' stands for '-' in the local or domain part
//	local       one or more of A-Z 0-9 . _ % + - '
//	domain      dot-separated labels of A-Z 0-9 -, not starting or ending in '-'
//	tld         last label, two or more letters
var (
	emailLocal  = regexp.MustCompile(`^[A-Z0-9._%+'-]+$`)
	emailDomain = regexp.MustCompile(`^(?:[A-Z0-9](?:[A-Z0-9-]*[A-Z0-9])?\.)+[A-Z]{2,}$`)
)

// Phone grammar, applied after affixes are stripped:
//
//	optional leading '+'
//	body   7..25 characters of 0-9, space, '-', '(', ')'
//	digits at least 7 in total
var phoneBody = regexp.MustCompile(`^[0-9 ()-]{7,25}$`)

const minPhoneDigits = 7

func canonical(detail string) string {
	return strings.ToUpper(strings.TrimSpace(detail))
}

// StripAffixes removes the carrier prefix and any trailing language or
// letter suffix, in either order.
func StripAffixes(detail string) string {
	s := canonical(detail)
	s = carrierPrefix.ReplaceAllString(s, "")
	for {
		next := letterSuffix.ReplaceAllString(s, "")
		next = languageSuffix.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// NormalizeEmail rewrites an airline-decorated email into local@domain form.
// ok is false when the result does not satisfy the email grammar.
func NormalizeEmail(detail string) (email string, ok bool) {
	s := StripAffixes(detail)
	s = strings.ReplaceAll(s, "./", "-")
	if !strings.Contains(s, "@") {
		s = strings.Replace(s, "//", "@", 1)
	}
	local, domain, found := strings.Cut(s, "@")
	if !found || strings.Contains(domain, "@") {
		return s, false
	}
	if !emailLocal.MatchString(local) || !emailDomain.MatchString(domain) {
		return s, false
	}
	return local + "@" + domain, true
}

// LooksLikeEmail reports whether detail satisfies the email grammar,
// regardless of the field it was found in.
func LooksLikeEmail(detail string) bool {
	_, ok := NormalizeEmail(detail)
	return ok
}

// LooksLikePhone reports whether detail satisfies the phone grammar.
func LooksLikePhone(detail string) bool {
	s := StripAffixes(detail)
	s = strings.TrimPrefix(s, "+")
	if !phoneBody.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}
