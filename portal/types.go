package portal

import (
	"fmt"
	"strings"
	"time"
)

// --- Structs for API Responses ---

// CatalogResponse is one page of /api/mods.
type CatalogResponse struct {
	Pagination *Pagination `json:"pagination"`
	Results    []Mod       `json:"results"`
}

type Pagination struct {
	Count     int   `json:"count"`
	Links     Links `json:"links"`
	Page      int   `json:"page"`
	PageCount int   `json:"page_count"`
	PageSize  int   `json:"page_size"`
}

type Links struct {
	First *string `json:"first"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
	Last  *string `json:"last"`
}

// Mod is a catalog entry as the portal returns it.
type Mod struct {
	DownloadsCount int      `json:"downloads_count"`
	LatestRelease  *Release `json:"latest_release"`
	Name           string   `json:"name"`
	Owner          string   `json:"owner"`
	Summary        string   `json:"summary"`
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	Thumbnail      *string  `json:"thumbnail"`
	Changelog      *string  `json:"changelog"`
}

// FullMod is the subset of /api/mods/{name}/full the notifier reads.
type FullMod struct {
	Name      string    `json:"name"`
	Changelog *string   `json:"changelog"`
	Releases  []Release `json:"releases"`
}

type Release struct {
	InfoJSON   InfoJSON `json:"info_json"`
	ReleasedAt string   `json:"released_at"`
	Version    string   `json:"version"`
}

type InfoJSON struct {
	FactorioVersion string `json:"factorio_version"`
}

// Entry is a catalog entry normalised for diffing.
type Entry struct {
	Name            string
	Title           string
	Owner           string
	Summary         string
	Category        string
	DownloadsCount  int
	FactorioVersion string
	Version         string
	ReleasedAt      time.Time // zero when the mod has no release
	Thumbnail       string
	Changelog       string // empty unless the catalog carries it
}

var categoryNames = map[string]string{
	"":              "No Category",
	"no-category":   "No Category",
	"content":       "Content",
	"overhaul":      "Overhaul",
	"tweaks":        "Tweaks",
	"utilities":     "Utilities",
	"scenarios":     "Scenarios",
	"mod-packs":     "Mod Packs",
	"localizations": "Localizations",
	"internal":      "Internal",
}

// CategoryName maps a portal category slug to its display name. Unknown
// slugs are title-cased rather than rejected.
func CategoryName(slug string) string {
	if name, ok := categoryNames[slug]; ok {
		return name
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (m Mod) entry() (Entry, error) {
	if m.Name == "" {
		return Entry{}, fmt.Errorf("catalog entry without name (title %q)", m.Title)
	}
	e := Entry{
		Name:           m.Name,
		Title:          m.Title,
		Owner:          m.Owner,
		Summary:        m.Summary,
		Category:       CategoryName(m.Category),
		DownloadsCount: m.DownloadsCount,
	}
	if m.Thumbnail != nil {
		e.Thumbnail = *m.Thumbnail
	}
	if m.Changelog != nil {
		e.Changelog = *m.Changelog
	}
	if r := m.LatestRelease; r != nil {
		e.Version = r.Version
		e.FactorioVersion = r.InfoJSON.FactorioVersion
		if r.ReleasedAt != "" {
			t, err := time.Parse(time.RFC3339Nano, r.ReleasedAt)
			if err != nil {
				return Entry{}, fmt.Errorf("mod %s: bad released_at %q: %w", m.Name, r.ReleasedAt, err)
			}
			e.ReleasedAt = t.UTC()
		}
	}
	return e, nil
}
