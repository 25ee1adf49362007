package snapshot

import (
	"fmt"
	"net/url"
	"slices"
	"time"
)

type Section string

const (
	SectionStats       Section = "stats"
	SectionBadges      Section = "badges"
	SectionPermissions Section = "permissions"
	SectionIdentity    Section = "identity"
	SectionExtras      Section = "extras"
	SectionModels      Section = "models"
	SectionHighlights  Section = "highlights"
)

var AllSections = []Section{
	SectionStats,
	SectionBadges,
	SectionPermissions,
	SectionIdentity,
	SectionExtras,
	SectionModels,
	SectionHighlights,
}

type SectionStatus struct {
	Available bool
	// Reason is set when the section is unavailable.
	Reason string
}

func Available() SectionStatus {
	return SectionStatus{Available: true}
}

func Unavailable(reason string) SectionStatus {
	return SectionStatus{Reason: reason}
}

type Category string

const (
	CategoryLiked      Category = "LIKED"
	CategoryDownloaded Category = "DOWNLOADED"
	CategoryPrinted    Category = "PRINTED"
)

var AllCategories = []Category{CategoryLiked, CategoryDownloaded, CategoryPrinted}

type Stats struct {
	Likes     Count
	Downloads Count
	Prints    Count
	Points    Count
	Followers Count
	Boosts    Count
}

// ModelRef identifies one published model of the profile owner.
type ModelRef struct {
	ID   int64
	Slug string
	// Title is a hint from the listing page, it may be empty.
	Title string
}

const baseUrl = "https://makerworld.com"

// ModelPath is the escaped detail page path of a model, slug is the raw
// unescaped slug as stored in ModelRef.
func ModelPath(id int64, slug string) string {
	if slug == "" {
		return fmt.Sprintf("/en/models/%d", id)
	}
	return fmt.Sprintf("/en/models/%d-%s", id, url.PathEscape(slug))
}

func (r ModelRef) URL() string {
	return baseUrl + ModelPath(r.ID, r.Slug)
}

type ModelHighlight struct {
	Category Category
	ModelID  int64
	Slug     string
	URL      string
	Title    string
	Count    int64
}

type Badges struct {
	// Titles keeps the order the profile displays them in.
	Titles            []string
	Verified          Flag
	CommercialLicence Flag
}

type Permissions struct {
	Comment      bool
	Community    bool
	DesignNotify bool
	PrivateMsg   bool
	Redeem       bool
	Upload       bool
	Whole        bool
}

type Identity struct {
	Handle string
	Name   string
	UID    int64
}

type Extras struct {
	Designs         Count
	Collections     Count
	Following       Count
	FeaturedDesigns Count
	ContestWins     Count
}

// Snapshot is one consistent point-in-time view of a profile. A published
// snapshot is never mutated, consumers get copies through Clone.
type Snapshot struct {
	Stats         Stats
	Highlights    []ModelHighlight
	Badges        Badges
	Permissions   Permissions
	Identity      Identity
	Extras        Extras
	ModelCount    int
	ScannedModels int
	Sections      map[Section]SectionStatus
	Warnings      []string
	FetchedAt     time.Time
	Sequence      uint64
}

// IsZero reports whether nothing has been published yet.
func (s Snapshot) IsZero() bool {
	return s.Sequence == 0 && s.FetchedAt.IsZero()
}

func (s Snapshot) Section(section Section) SectionStatus {
	status, ok := s.Sections[section]
	if !ok {
		return Unavailable("not collected")
	}
	return status
}

func (s Snapshot) Highlight(category Category) (ModelHighlight, bool) {
	for _, h := range s.Highlights {
		if h.Category == category {
			return h, true
		}
	}
	return ModelHighlight{}, false
}

// UnavailableSections returns the unavailable sections in AllSections order.
func (s Snapshot) UnavailableSections() []Section {
	var out []Section
	for _, section := range AllSections {
		if !s.Section(section).Available {
			out = append(out, section)
		}
	}
	return out
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Highlights = slices.Clone(s.Highlights)
	out.Badges.Titles = slices.Clone(s.Badges.Titles)
	out.Warnings = slices.Clone(s.Warnings)
	if s.Sections != nil {
		out.Sections = make(map[Section]SectionStatus, len(s.Sections))
		for k, v := range s.Sections {
			out.Sections[k] = v
		}
	}
	return out
}
