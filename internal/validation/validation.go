// Package validation provides centralized input validation for tplot.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/xtxerr/tplot/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names. With AllowAny every
// printable character is accepted except path separators and the glob
// wildcards '*' and '?'.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowAny     bool
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowPlus    bool
}

// DefaultNameRules returns the default rules for variable names.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength: 1,
		MaxLength: 255,
		AllowAny:  true,
	}
}

// LinkTypeRules returns rules for link type identifiers (alt, lat, x ...).
func LinkTypeRules() NameRules {
	return NameRules{
		MinLength:   1,
		MaxLength:   32,
		AllowUnders: true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required: %w", rules.MinLength, errors.ErrInvalidName)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed: %w", rules.MaxLength, errors.ErrInvalidName)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..': %w", errors.ErrInvalidName)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d: %w", i, errors.ErrInvalidName)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d: %w", i, errors.ErrInvalidName)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d: %w", r, i, errors.ErrInvalidName)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if rules.AllowAny {
		return r != '*' && r != '?' && unicode.IsPrint(r)
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case '+':
		return rules.AllowPlus
	}
	return false
}

// NormalizeName trims surrounding whitespace and converts name to Unicode
// NFC so that visually identical names map to the same registry key.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateVariableName validates a variable name with default rules.
func ValidateVariableName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// ValidateLinkType validates the coordinate type of a link.
func ValidateLinkType(linkType string) error {
	return ValidateName(linkType, LinkTypeRules())
}

// IsPattern reports whether s contains glob metacharacters. A name may
// contain '[', so callers look a string up as a name before matching it.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// =============================================================================
// Struct Validation
// =============================================================================

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once

	choicesMu sync.RWMutex
	choices   = map[string][]string{}
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
			return ValidateVariableName(fl.Field().String()) == nil
		})
		structValidator = v
	})
	return structValidator
}

// RegisterChoice registers a struct tag that accepts exactly one of the
// allowed values. It is meant to be called from package init functions.
func RegisterChoice(tag string, allowed ...string) {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}

	choicesMu.Lock()
	choices[tag] = append([]string(nil), allowed...)
	choicesMu.Unlock()

	_ = getValidator().RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return set[fl.Field().String()]
	})
}

// Struct validates s against its `validate` struct tags and converts the
// failures into an errors.ValidationErrors whose entries wrap
// ErrInvalidOption.
func Struct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate")
	}

	verrs := errors.NewValidationErrors()
	for _, fe := range fieldErrs {
		verrs.Add(errors.NewInvalidOption(optionName(fe), fe.Value(), describeTag(fe)))
	}
	return verrs.Err()
}

func optionName(fe validator.FieldError) string {
	name := fe.Field()
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "required":
		return "is required"
	case "len":
		return "must have length " + fe.Param()
	case "varname":
		return "is not a valid variable name"
	}

	choicesMu.RLock()
	allowed, ok := choices[fe.Tag()]
	choicesMu.RUnlock()
	if ok {
		return "must be one of [" + strings.Join(allowed, " ") + "]"
	}
	return "failed " + fe.Tag() + " check"
}

// =============================================================================
// Query Helpers
// =============================================================================

var sqlLikeMetaChars = regexp.MustCompile(`[%_\[\]\\]`)

// EscapeLikePattern escapes special characters in a LIKE pattern.
func EscapeLikePattern(pattern string) string {
	return sqlLikeMetaChars.ReplaceAllStringFunc(pattern, func(s string) string {
		return "\\" + s
	})
}

// SafeLikePrefix creates a safe LIKE prefix pattern.
func SafeLikePrefix(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}
