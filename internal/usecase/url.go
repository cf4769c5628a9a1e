package usecase

import (
	"net/url"
	"strings"

	"social-pipeline/internal/domain/model"
)

// ValidURL reports whether raw is an absolute URL with a scheme and host
// that is not a status word written into the url column by mistake.
func ValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || model.IsStatusWord(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
