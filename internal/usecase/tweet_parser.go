package usecase

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
)

var (
	hashtagRe    = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	numberedRe   = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•]|tweet\s*\d+\s*:)\s*`)
	numberedLine = regexp.MustCompile(`^\s*\d+\.\s`)
)

// TweetParser turns raw model output into Tweets. It tries, in order:
//  1. a JSON array of tweet objects or strings (optionally inside a
//     markdown fence, optionally surrounded by prose),
//  2. a single JSON tweet object,
//  3. plain text, one tweet per line, hashtags taken from #tokens.
type TweetParser struct {
	fallback []string
	now      func() time.Time
}

func NewTweetParser(fallbackHashtags []string, now func() time.Time) *TweetParser {
	if len(fallbackHashtags) == 0 {
		fallbackHashtags = model.DefaultHashtags
	}
	if now == nil {
		now = time.Now
	}
	return &TweetParser{fallback: fallbackHashtags, now: now}
}

func (p *TweetParser) Parse(raw string) ([]model.Tweet, error) {
	body := stripFence(raw)
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrNoTweets
	}

	at := p.now().UTC()
	if drafts, ok := parseJSONTweets(dropNumberedLines(body)); ok {
		tweets := p.build(drafts, at)
		if len(tweets) == 0 {
			return nil, domain.ErrNoTweets
		}
		return tweets, nil
	}

	tweets := p.build(splitLines(body), at)
	if len(tweets) == 0 {
		return nil, domain.ErrNoTweets
	}
	return tweets, nil
}

type tweetDraft struct {
	text     string
	hashtags []string
}

func (p *TweetParser) build(drafts []tweetDraft, at time.Time) []model.Tweet {
	out := make([]model.Tweet, 0, len(drafts))
	for _, d := range drafts {
		text := model.NormalizeText(d.text)
		if text == "" {
			continue
		}
		tags := d.hashtags
		if len(tags) == 0 {
			tags = extractHashtags(text)
		}
		if len(tags) == 0 {
			tags = append([]string(nil), p.fallback...)
		}
		out = append(out, model.Tweet{
			Index:       len(out) + 1,
			Text:        text,
			Hashtags:    tags,
			GeneratedAt: at,
		})
	}
	return out
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func dropNumberedLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if numberedLine.MatchString(l) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func parseJSONTweets(s string) ([]tweetDraft, bool) {
	for _, candidate := range jsonCandidates(s) {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
			out := make([]tweetDraft, 0, len(arr))
			for _, el := range arr {
				if d, ok := decodeTweet(el); ok {
					out = append(out, d)
				}
			}
			return out, true
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			// {"tweets": [...]} wrapper
			if inner, ok := obj["tweets"]; ok {
				if d, ok := parseJSONTweets(string(inner)); ok {
					return d, true
				}
			}
			if d, ok := decodeTweetObject(obj); ok {
				return []tweetDraft{d}, true
			}
		}
	}
	return nil, false
}

// jsonCandidates yields s itself and the outermost bracketed spans in it.
func jsonCandidates(s string) []string {
	s = strings.TrimSpace(s)
	out := []string{s}
	if i, j := strings.IndexByte(s, '['), strings.LastIndexByte(s, ']'); i >= 0 && j > i {
		out = append(out, s[i:j+1])
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		out = append(out, s[i:j+1])
	}
	return out
}

func decodeTweet(raw json.RawMessage) (tweetDraft, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return tweetDraft{text: s}, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return tweetDraft{}, false
	}
	return decodeTweetObject(obj)
}

func decodeTweetObject(obj map[string]json.RawMessage) (tweetDraft, bool) {
	var d tweetDraft
	for _, key := range []string{"text", "tweet", "content"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			d.text = s
			break
		}
		// nested {"text": "...", "hashtags": [...]}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if inner, ok := decodeTweetObject(nested); ok {
				d = inner
				break
			}
		}
	}
	if tags, ok := obj["hashtags"]; ok {
		d.hashtags = decodeHashtags(tags)
	} else if tags, ok := obj["tags"]; ok {
		d.hashtags = decodeHashtags(tags)
	}
	return d, strings.TrimSpace(d.text) != ""
}

func decodeHashtags(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanHashtags(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanHashtags(strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n'
		}))
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		if inner, ok := nested["hashtags"]; ok {
			return decodeHashtags(inner)
		}
	}
	return nil
}

func cleanHashtags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = model.NormalizeHashtag(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func extractHashtags(text string) []string {
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return cleanHashtags(tags)
}

// splitLines is the last resort: every non-empty line is a tweet and a
// line made only of hashtags belongs to the tweet above it.
func splitLines(s string) []tweetDraft {
	var out []tweetDraft
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(numberedRe.ReplaceAllString(line, ""))
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		if onlyHashtags(line) && len(out) > 0 {
			last := &out[len(out)-1]
			last.text += " " + line
			continue
		}
		out = append(out, tweetDraft{text: line})
	}
	return out
}

func onlyHashtags(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") {
			return false
		}
	}
	return true
}
