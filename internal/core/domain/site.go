package domain

import "errors"

type SectionType string

const (
	SectionHero         SectionType = "hero"
	SectionFeatures     SectionType = "features"
	SectionCTA          SectionType = "cta"
	SectionPricing      SectionType = "pricing"
	SectionFAQ          SectionType = "faq"
	SectionTestimonials SectionType = "testimonials"
	SectionGallery      SectionType = "gallery"
	SectionStats        SectionType = "stats"
	SectionContact      SectionType = "contact"
	SectionFooter       SectionType = "footer"
)

// SectionMedia is an image or video slot inside a section. Prompt describes
// what should be generated; URL is filled once an asset exists.
type SectionMedia struct {
	Kind   string `json:"kind"` // "image" or "video"
	Prompt string `json:"prompt"`
	Alt    string `json:"alt"`
	URL    string `json:"url,omitempty"`
}

type SectionAction struct {
	Label string `json:"label"`
	Href  string `json:"href"`
	Style string `json:"style,omitempty"` // primary, secondary, ghost
}

type SectionItem struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Href        string         `json:"href,omitempty"`
	Stats       map[string]any `json:"stats,omitempty"`
}

type SectionMeta struct {
	Layout     string `json:"layout,omitempty"` // grid, list, carousel
	AriaLabel  string `json:"ariaLabel,omitempty"`
	Background string `json:"background,omitempty"` // default, muted, accent
}

// SiteSection is one ordered block of a page. The queue engine never
// interprets this structure; processors read and rewrite it whole.
type SiteSection struct {
	ID       string          `json:"id"`
	Type     SectionType     `json:"type"`
	Headline string          `json:"headline"`
	Subhead  string          `json:"subhead,omitempty"`
	Body     string          `json:"body,omitempty"`
	Media    []SectionMedia  `json:"media,omitempty"`
	Actions  []SectionAction `json:"actions,omitempty"`
	Items    []SectionItem   `json:"items,omitempty"`
	Metadata *SectionMeta    `json:"metadata,omitempty"`
}

type PageSEO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

type SitePage struct {
	Route       string        `json:"route"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	SEO         PageSEO       `json:"seo"`
	Sections    []SiteSection `json:"sections"`
}

type SitePalette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Background string `json:"background"`
	Accent     string `json:"accent"`
}

type SiteInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Locale      string      `json:"locale"`
	Palette     SitePalette `json:"palette"`
}

// SiteDocument is the full persisted content tree of a generated site.
type SiteDocument struct {
	Version string     `json:"version"`
	Site    SiteInfo   `json:"site"`
	Pages   []SitePage `json:"pages"`
}

// FindPage returns the page with the given route, or nil.
func (d *SiteDocument) FindPage(route string) *SitePage {
	for i := range d.Pages {
		if d.Pages[i].Route == route {
			return &d.Pages[i]
		}
	}
	return nil
}

// FindSection returns the index of the section with the given id, or -1.
func (p *SitePage) FindSection(id string) int {
	for i := range p.Sections {
		if p.Sections[i].ID == id {
			return i
		}
	}
	return -1
}

var (
	ErrSiteNotFound    = errors.New("site not found")
	ErrPageNotFound    = errors.New("page not found")
	ErrSectionNotFound = errors.New("section not found")
)
