package validate

import (
	"strings"
)

// CountryCode is the Mozambique dialling code.
const CountryCode = "258"

// network prefixes 82..87
var validPrefixes = map[string]struct{}{
	"82": {}, "83": {}, "84": {}, "85": {}, "86": {}, "87": {},
}

// NormalizePhone converts local or international Mozambique mobile numbers
// into E.164 form (+258XXXXXXXXX).
func NormalizePhone(s string) (string, error) {
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "+"+CountryCode):
		s = s[len(CountryCode)+1:]
	case strings.HasPrefix(s, "00"+CountryCode):
		s = s[len(CountryCode)+2:]
	case strings.HasPrefix(s, CountryCode) && len(s) == len(CountryCode)+9:
		s = s[len(CountryCode):]
	}
	if len(s) != 9 || !allDigits(s) {
		return "", invalid("phone", "Invalid phone number")
	}
	if _, ok := validPrefixes[s[:2]]; !ok {
		return "", invalid("phone", "Unsupported mobile network")
	}
	return "+" + CountryCode + s, nil
}

// OperatorPrefix returns the two-digit network prefix of a normalized number.
func OperatorPrefix(e164 string) string {
	local := strings.TrimPrefix(e164, "+"+CountryCode)
	if len(local) < 2 {
		return ""
	}
	return local[:2]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
