package models

import "time"

// ContentType discriminates the two independent feed families.
type ContentType string

const (
	TypeAnnouncement ContentType = "announcement"
	TypeBlogPost     ContentType = "blog_post"
)

// Valid reports whether the content type is one of the known families.
func (t ContentType) Valid() bool {
	return t == TypeAnnouncement || t == TypeBlogPost
}

// ParsedItem is the parser's output: source-derived fields only.
// Local flags are never populated at this stage.
type ParsedItem struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	Link             string    `json:"link"`
	AuthorName       string    `json:"author_name"`
	Category         string    `json:"category"`
	FeaturedImageURL string    `json:"featured_image_url"`
	ImageURLs        []string  `json:"image_urls"`
	PublishedAt      time.Time `json:"published_at"`
}

// Mergeable is the capability the reconciler operates on. WithSource
// returns a copy with all source-derived fields taken from the parsed
// item and local flags carried forward; on a zero value it constructs
// a fresh item with default (false) flags.
type Mergeable[T any] interface {
	ItemID() string
	Published() time.Time
	Read() bool
	WithSource(p ParsedItem, fetchedAt time.Time) T
}

// Announcement is a synced item from the announcements feed.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	AuthorName  string    `json:"author_name"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
	IsRead      bool      `json:"is_read"`
	ReadAt      time.Time `json:"read_at,omitempty"`
}

func (a Announcement) ItemID() string       { return a.ID }
func (a Announcement) Published() time.Time { return a.PublishedAt }
func (a Announcement) Read() bool           { return a.IsRead }

func (a Announcement) WithSource(p ParsedItem, fetchedAt time.Time) Announcement {
	a.ID = p.ID
	a.Title = p.Title
	a.Summary = p.Summary
	a.Link = p.Link
	a.AuthorName = p.AuthorName
	a.Category = p.Category
	a.PublishedAt = p.PublishedAt
	a.FetchedAt = fetchedAt
	return a
}

// Item converts to the unified tagged-union view.
func (a Announcement) Item() Item {
	return Item{
		Type:        TypeAnnouncement,
		ID:          a.ID,
		Title:       a.Title,
		Summary:     a.Summary,
		Link:        a.Link,
		AuthorName:  a.AuthorName,
		Category:    a.Category,
		PublishedAt: a.PublishedAt,
		FetchedAt:   a.FetchedAt,
		IsRead:      a.IsRead,
	}
}

// BlogPost is a synced item from the blog feed. It carries the
// favorite flag and image fields the announcement variant lacks.
type BlogPost struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	Link             string    `json:"link"`
	AuthorName       string    `json:"author_name"`
	Category         string    `json:"category"`
	FeaturedImageURL string    `json:"featured_image_url"`
	ImageURLs        []string  `json:"image_urls"`
	PublishedAt      time.Time `json:"published_at"`
	FetchedAt        time.Time `json:"fetched_at"`
	IsRead           bool      `json:"is_read"`
	IsFavorite       bool      `json:"is_favorite"`
	ReadAt           time.Time `json:"read_at,omitempty"`
}

func (b BlogPost) ItemID() string       { return b.ID }
func (b BlogPost) Published() time.Time { return b.PublishedAt }
func (b BlogPost) Read() bool           { return b.IsRead }

func (b BlogPost) WithSource(p ParsedItem, fetchedAt time.Time) BlogPost {
	b.ID = p.ID
	b.Title = p.Title
	b.Summary = p.Summary
	b.Link = p.Link
	b.AuthorName = p.AuthorName
	b.Category = p.Category
	b.FeaturedImageURL = p.FeaturedImageURL
	b.ImageURLs = p.ImageURLs
	b.PublishedAt = p.PublishedAt
	b.FetchedAt = fetchedAt
	return b
}

// Item converts to the unified tagged-union view.
func (b BlogPost) Item() Item {
	return Item{
		Type:             TypeBlogPost,
		ID:               b.ID,
		Title:            b.Title,
		Summary:          b.Summary,
		Link:             b.Link,
		AuthorName:       b.AuthorName,
		Category:         b.Category,
		FeaturedImageURL: b.FeaturedImageURL,
		ImageURLs:        b.ImageURLs,
		PublishedAt:      b.PublishedAt,
		FetchedAt:        b.FetchedAt,
		IsRead:           b.IsRead,
		IsFavorite:       b.IsFavorite,
	}
}

// Item is the unified view over both content types, consumed by the
// feed repository and the API. Identity is scoped per content type:
// (Type, ID) is the composite key.
type Item struct {
	Type             ContentType `json:"type"`
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Summary          string      `json:"summary"`
	Link             string      `json:"link"`
	AuthorName       string      `json:"author_name,omitempty"`
	Category         string      `json:"category,omitempty"`
	FeaturedImageURL string      `json:"featured_image_url,omitempty"`
	ImageURLs        []string    `json:"image_urls,omitempty"`
	PublishedAt      time.Time   `json:"published_at"`
	FetchedAt        time.Time   `json:"fetched_at"`
	IsRead           bool        `json:"is_read"`
	IsFavorite       bool        `json:"is_favorite,omitempty"`
}

// ItemRef identifies an item for flag-toggle routing.
type ItemRef struct {
	Type ContentType `json:"type"`
	ID   string      `json:"id"`
}
