package portal

import "strings"

// versionSeparator divides the versions of a portal changelog.
var versionSeparator = strings.Repeat("-", 99)

// ChangelogEntry is one version section of a changelog.
type ChangelogEntry struct {
	Version    string
	Date       string
	Categories []ChangelogCategory
}

// ChangelogCategory groups the lines of a section, e.g. "Bugfixes:".
type ChangelogCategory struct {
	Name    string
	Entries []string
}

// ParseChangelog splits the portal's changelog format:
//
//	Version: 1.0.1
//	Date: 06. 07. 2024
//	  Bugfixes:
//	    - Fixed X.
//
// Lines that match none of these shapes are ignored.
func ParseChangelog(text string) []ChangelogEntry {
	var out []ChangelogEntry
	for _, section := range strings.Split(text, versionSeparator) {
		var (
			entry    ChangelogEntry
			category ChangelogCategory
		)
		flushCategory := func() {
			if category.Name != "" || len(category.Entries) > 0 {
				entry.Categories = append(entry.Categories, category)
			}
			category = ChangelogCategory{}
		}

		for _, line := range strings.Split(strings.ReplaceAll(section, "\r\n", "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "Version: "):
				if entry.Version != "" {
					flushCategory()
					out = append(out, entry)
				}
				category = ChangelogCategory{}
				entry = ChangelogEntry{Version: strings.TrimSpace(strings.TrimPrefix(line, "Version: "))}
			case strings.HasPrefix(line, "Date: "):
				entry.Date = strings.TrimSpace(strings.TrimPrefix(line, "Date: "))
			case strings.HasPrefix(line, "    "):
				category.Entries = append(category.Entries, strings.TrimPrefix(line, "    "))
			case strings.HasPrefix(line, "  "):
				flushCategory()
				category.Name = strings.TrimPrefix(line, "  ")
			}
		}
		if entry.Version != "" {
			flushCategory()
			out = append(out, entry)
		}
	}
	return out
}

// FindVersion returns the section for version.
func FindVersion(entries []ChangelogEntry, version string) (ChangelogEntry, bool) {
	for _, e := range entries {
		if e.Version == version {
			return e, true
		}
	}
	return ChangelogEntry{}, false
}
