package validator_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("nil when all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("email", "reader@example.com"),
			validator.ValidEmail("email", "reader@example.com"),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("name", " "),
			validator.ValidEmail("email", "nope"),
			validator.MaxLen("plan", "standard", 32),
		)
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))

		ve := validator.ExtractValidationErrors(err)
		assert.Len(t, ve, 2)
		assert.True(t, ve.Has("name"))
		assert.True(t, ve.Has("email"))
		assert.False(t, ve.Has("plan"))
		assert.Equal(t, []string{"must be a valid email address"}, ve.Map()["email"])
		assert.Equal(t, "validation failed: name: field is required; email: must be a valid email address", err.Error())
	})

	t.Run("survives wrapping", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("checkout: %w", validator.Apply(validator.Required("plan", "")))
		assert.True(t, validator.IsValidationError(err))
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("plain")))
	})
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"email ok", validator.ValidEmail("email", "Reader@Example.com"), true},
		{"email display name", validator.ValidEmail("email", "Reader <reader@example.com>"), false},
		{"email no dot", validator.ValidEmail("email", "reader@localhost"), false},
		{"email empty label", validator.ValidEmail("email", "reader@example..com"), false},
		{"phone ok", validator.ValidPhone("phone", "+380 (67) 123-45-67"), true},
		{"phone short", validator.ValidPhone("phone", "+12345"), false},
		{"phone letters", validator.ValidPhone("phone", "+38067abc"), false},
		{"url ok", validator.ValidURL("redirect_url", "https://shop.example.com/thanks"), true},
		{"url relative", validator.ValidURL("redirect_url", "/thanks"), false},
		{"url scheme", validator.ValidURL("redirect_url", "ftp://example.com"), false},
		{"identifier ok", validator.ValidIdentifier("reference", "order-123", 64), true},
		{"identifier slash", validator.ValidIdentifier("reference", "order/123", 64), false},
		{"identifier long", validator.ValidIdentifier("reference", strings.Repeat("a", 65), 64), false},
		{"max len runes", validator.MaxLen("name", "Олена", 5), true},
		{"one of", validator.OneOf("status", "pending", []string{"pending", "failed"}), true},
		{"not one of", validator.OneOf("status", "done", []string{"pending", "failed"}), false},
		{"optional blank", validator.Optional("", validator.ValidPhone("phone", "")), true},
		{"optional invalid", validator.Optional("abc", validator.ValidPhone("phone", "abc")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, tt.rule.Check())
		})
	}
}
