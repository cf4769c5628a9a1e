//go:build !integration

package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/a":        true,
		"  http://news.example.org/x ": true,
		"":                             false,
		"pending":                      false,
		"ERROR":                        false,
		"in_progress":                  false,
		"example.com/a":                false,
		"not a url":                    false,
		"https://":                     false,
		"mailto:editor@example.com":    false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ValidURL(raw), "url %q", raw)
	}
}
