package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	TwitterLimit = 280
	BlueskyLimit = 300
)

// DefaultHashtags is used when the model omits hashtags.
var DefaultHashtags = []string{"blockchain", "crypto"}

type Tweet struct {
	Index       int       `json:"index"`
	Text        string    `json:"text"`
	Hashtags    []string  `json:"hashtags"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NormalizeText trims and NFC-normalizes tweet text.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeHashtag strips leading '#' and surrounding punctuation.
func NormalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimLeft(tag, "#")
	return strings.TrimRight(tag, ".,;:!?)]}\"'")
}

// Render returns the publishable text: the tweet body followed by any
// hashtags it does not already contain, cut to limit runes.
func (t Tweet) Render(limit int) string {
	text := t.Text
	lower := strings.ToLower(text)
	var tail []string
	for _, h := range t.Hashtags {
		if h == "" {
			continue
		}
		tag := "#" + h
		if strings.Contains(lower, strings.ToLower(tag)) {
			continue
		}
		tail = append(tail, tag)
	}
	if len(tail) > 0 {
		candidate := text + " " + strings.Join(tail, " ")
		if limit <= 0 || utf8.RuneCountInString(candidate) <= limit {
			text = candidate
		}
	}
	return Truncate(text, limit)
}

// Truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	if limit == 1 {
		return string(r[:1])
	}
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}

// Article is the extracted content of a WorkItem URL.
type Article struct {
	URL   string
	Title string
	Text  string
}

func (a Article) Empty() bool { return strings.TrimSpace(a.Text) == "" }
