package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const (
	orcidPrefix = "https://orcid.org/"
	rorPrefix   = "https://ror.org/"
)

var (
	orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	rorPattern   = regexp.MustCompile(`^0[0-9a-hjkmnp-tv-z]{6}\d{2}$`)
)

// crockford is the Crockford base32 alphabet used by ROR identifiers.
const crockford = "0123456789abcdefghjkmnpqrstvwxyz"

func stripIdentifierPrefix(s string, hosts ...string) string {
	s = strings.TrimSpace(s)
	for _, scheme := range []string{"https://", "http://", ""} {
		for _, host := range hosts {
			if p := scheme + host + "/"; strings.HasPrefix(s, p) {
				return strings.TrimPrefix(s, p)
			}
		}
	}
	return s
}

// ORCIDChecksum computes the ISO 7064 mod 11-2 check character for the
// first 15 digits of an ORCID iD.
func ORCIDChecksum(digits string) byte {
	total := 0
	for _, c := range digits {
		total = (total + int(c-'0')) * 2
	}
	r := (12 - total%11) % 11
	if r == 10 {
		return 'X'
	}
	return byte('0' + r)
}

func validateORCID(_ context.Context, value any, _ *Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected an ORCID string, got %T", value)
	}
	id := strings.ToUpper(stripIdentifierPrefix(s, "orcid.org", "www.orcid.org"))
	if !orcidPattern.MatchString(id) {
		return nil, fmt.Errorf("%q is not a valid ORCID: expected the form 0000-0000-0000-000X", s)
	}
	digits := strings.ReplaceAll(id, "-", "")
	if want := ORCIDChecksum(digits[:15]); digits[15] != want {
		return nil, fmt.Errorf("%q is not a valid ORCID: checksum mismatch", s)
	}
	return orcidPrefix + id, nil
}

// RORChecksum computes the two check digits of a ROR identifier from its
// first seven characters.
func RORChecksum(body string) (string, error) {
	var n int64
	for _, c := range body {
		i := strings.IndexRune(crockford, c)
		if i < 0 {
			return "", fmt.Errorf("invalid character %q", c)
		}
		n = n*32 + int64(i)
	}
	return fmt.Sprintf("%02d", 98-((n*100)%97)), nil
}

func validateROR(_ context.Context, value any, _ *Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a ROR string, got %T", value)
	}
	id := strings.ToLower(stripIdentifierPrefix(s, "ror.org"))
	if !rorPattern.MatchString(id) {
		return nil, fmt.Errorf("%q is not a valid ROR ID", s)
	}
	want, err := RORChecksum(id[:7])
	if err != nil {
		return nil, fmt.Errorf("%q is not a valid ROR ID: %w", s, err)
	}
	if id[7:] != want {
		return nil, fmt.Errorf("%q is not a valid ROR ID: checksum mismatch", s)
	}
	return rorPrefix + id, nil
}
