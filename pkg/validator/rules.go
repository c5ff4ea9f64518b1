package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	phoneRegex     = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
	identRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-.]*$`)
)

func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max)},
	}
}

// ValidEmail accepts a bare RFC 5322 address whose domain has at least one dot.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			value = strings.TrimSpace(value)
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}
			local, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || local == "" || !strings.Contains(domain, ".") {
				return false
			}
			return !slices.Contains(strings.Split(domain, "."), "")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// ValidPhone accepts E.164-like numbers; spaces, dashes and parentheses are ignored.
func ValidPhone(field, value string) Rule {
	return Rule{
		Check: func() bool {
			cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(value)
			return phoneRegex.MatchString(cleaned)
		},
		Error: ValidationError{Field: field, Message: "must be a valid phone number in international format"},
	}
}

// ValidURL requires an absolute http or https URL.
func ValidURL(field, value string) Rule {
	return Rule{
		Check: func() bool {
			u, err := url.ParseRequestURI(value)
			return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
		},
		Error: ValidationError{Field: field, Message: "must be a valid http(s) URL"},
	}
}

// ValidIdentifier accepts ids safe to embed in URLs and object keys.
func ValidIdentifier(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max && identRegex.MatchString(value) },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be up to %d letters, digits, '-', '_' or '.'", max)},
	}
}

func OneOf[T comparable](field string, value T, options []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(options, value) },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be one of %v", options)},
	}
}
