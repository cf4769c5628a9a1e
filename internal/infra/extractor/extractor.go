// Package extractor pulls the readable article out of a web page.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/metrics"
)

var _ adapter.ContentExtractor = (*Extractor)(nil)

const minTextLen = 100

var noise = strings.Join([]string{
	"script", "style", "noscript", "nav", "header", "footer", "aside", "form", "iframe", "svg", "button",
	".ad", ".ads", ".advert", ".advertisement", `[class*="advert"]`, `[id^="ad-"]`, `[class^="ad-"]`,
	`[class*="share"]`, `[class*="social"]`, `[class*="newsletter"]`, `[class*="subscribe"]`,
	`[class*="cookie"]`, `[id*="cookie"]`, `[class*="related"]`, `[class*="comments"]`,
}, ", ")

// domainSelectors are tried before the generic list, keyed by host suffix.
var domainSelectors = []struct {
	host      string
	selectors []string
}{
	{"medium.com", []string{`section[data-field="body"]`, "article"}},
	{"substack.com", []string{".available-content", ".body.markup", "article"}},
	{"mirror.xyz", []string{`div[class*="Content"]`, "article"}},
	{"github.com", []string{"article.markdown-body", ".markdown-body"}},
	{"dev.to", []string{"#article-body", ".crayons-article__body"}},
	{"hashnode.dev", []string{"#post-content-wrapper", ".prose"}},
	{"hashnode.com", []string{"#post-content-wrapper", ".prose"}},
	{"notion.site", []string{".notion-page-content"}},
	{"hackernoon.com", []string{".story-container", "article"}},
	{"wordpress.com", []string{".entry-content"}},
}

var genericSelectors = []string{
	"article", ".article", ".post-content", ".entry-content", ".article-content", ".post-body",
	".article-body", ".content-body", ".gh-content", ".markdown-body", `[itemprop="articleBody"]`,
	`[role="main"]`, "#content",
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Extractor fetches a page with the first working fetcher and extracts its
// main text.
type Extractor struct {
	fetchers []Fetcher
	conv     *md.Converter
	log      *zerolog.Logger
}

func New(logger *zerolog.Logger, fetchers ...Fetcher) *Extractor {
	l := logger.With().Str("component", "ContentExtractor").Logger()
	return &Extractor{fetchers: fetchers, conv: md.NewConverter("", true, nil), log: &l}
}

// Extract tries each fetcher in order. A fetcher that errors or yields no
// qualifying text hands over to the next one. The result is empty, with a
// nil error, when pages were fetched but nothing qualified.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (model.Article, error) {
	var errs []error
	for _, f := range e.fetchers {
		html, err := f.Fetch(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return model.Article{}, ctx.Err()
			}
			metrics.IncExtraction(f.Name(), false)
			e.log.Warn().Err(err).Str("fetcher", f.Name()).Str("url", rawURL).Msg("fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		art := e.FromHTML(rawURL, html)
		metrics.IncExtraction(f.Name(), !art.Empty())
		if !art.Empty() {
			e.log.Info().Str("fetcher", f.Name()).Str("url", rawURL).Int("chars", utf8.RuneCountInString(art.Text)).Msg("content extracted")
			return art, nil
		}
		e.log.Warn().Str("fetcher", f.Name()).Str("url", rawURL).Msg("no qualifying content")
	}
	if len(errs) == len(e.fetchers) && len(errs) > 0 {
		return model.Article{}, errors.Join(errs...)
	}
	return model.Article{URL: rawURL}, nil
}

// FromHTML extracts the title and main text of html. Text is empty when no
// candidate is longer than minTextLen characters.
func (e *Extractor) FromHTML(rawURL, html string) model.Article {
	art := model.Article{URL: rawURL}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return art
	}
	art.Title = title(doc)
	doc.Find(noise).Remove()

	for _, sel := range candidates(rawURL) {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := normalize(e.conv.Convert(node))
		if utf8.RuneCountInString(text) > minTextLen {
			art.Text = text
			return art
		}
	}
	return art
}

func candidates(rawURL string) []string {
	var out []string
	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(u.Hostname())
		for _, d := range domainSelectors {
			if host == d.host || strings.HasSuffix(host, "."+d.host) {
				out = append(out, d.selectors...)
			}
		}
	}
	out = append(out, genericSelectors...)
	return append(out, "main", "body")
}

func title(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return spaceRun.ReplaceAllString(t, " ")
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return model.NormalizeText(strings.TrimSpace(s))
}
