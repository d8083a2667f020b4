package feed

import (
	"bytes"
	"errors"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mkutlay/feedsync/internal/models"
	"github.com/mmcdole/gofeed"
)

// maxSummaryLen caps sanitized summaries, in runes.
const maxSummaryLen = 300

// Parser converts raw RSS/Atom documents into normalized items.
type Parser struct {
	parser       *gofeed.Parser
	htmlTagRegex *regexp.Regexp
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		parser:       gofeed.NewParser(),
		htmlTagRegex: regexp.MustCompile(`<[^>]*>`),
		now:          time.Now,
	}
}

// Parse converts a raw document into an ordered list of parsed items.
// Local flags are never populated here. Items without a usable
// identity (no GUID and no link) are skipped, not fatal.
func (p *Parser) Parse(raw []byte) ([]models.ParsedItem, error) {
	parsed, err := p.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, &ParseError{Kind: ParseUnsupportedFormat, Err: err}
		}
		return nil, &ParseError{Kind: ParseMalformedDocument, Err: err}
	}

	items := make([]models.ParsedItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		id := strings.TrimSpace(it.GUID)
		if id == "" {
			id = strings.TrimSpace(it.Link)
		}
		if id == "" {
			continue
		}

		items = append(items, models.ParsedItem{
			ID:               id,
			Title:            p.CleanHTML(it.Title),
			Summary:          p.summary(it),
			Link:             strings.TrimSpace(it.Link),
			AuthorName:       authorName(it),
			Category:         category(it),
			FeaturedImageURL: featuredImage(it),
			ImageURLs:        imageURLs(it),
			PublishedAt:      p.publishedAt(it),
		})
	}
	return items, nil
}

// CleanHTML removes HTML tags and normalizes whitespace
func (p *Parser) CleanHTML(input string) string {
	cleaned := p.htmlTagRegex.ReplaceAllString(input, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// summary sanitizes and caps the item summary, preferring the richer
// content field over the shorter description when both exist.
func (p *Parser) summary(it *gofeed.Item) string {
	source := it.Description
	if it.Content != "" {
		source = it.Content
	}
	return truncate(p.CleanHTML(source), maxSummaryLen)
}

func (p *Parser) publishedAt(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed
	}
	return p.now()
}

func authorName(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return strings.TrimSpace(it.Author.Name)
	}
	if len(it.Authors) > 0 && it.Authors[0] != nil {
		return strings.TrimSpace(it.Authors[0].Name)
	}
	return ""
}

func category(it *gofeed.Item) string {
	if len(it.Categories) > 0 {
		return strings.TrimSpace(it.Categories[0])
	}
	return ""
}

func featuredImage(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func imageURLs(it *gofeed.Item) []string {
	var urls []string
	if it.Image != nil && it.Image.URL != "" {
		urls = append(urls, it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" && (len(urls) == 0 || urls[0] != enc.URL) {
			urls = append(urls, enc.URL)
		}
	}
	return urls
}

// truncate caps a string at maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
