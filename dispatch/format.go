package dispatch

import (
	"strconv"
	"strings"

	"mod-update-notifier/db"
	"mod-update-notifier/diff"
	"mod-update-notifier/platform"
	"mod-update-notifier/portal"
)

const (
	colorNew      = 0x2ECC71
	colorUpdated  = 0x5865F2
	colorMetadata = 0x95A5A6

	maxTitleLen       = 256
	maxDescriptionLen = 4096
	trimmedMarker     = "<Trimmed>"
)

// Links builds portal URLs for embeds. *portal.Client implements it.
type Links interface {
	ModURL(name string) string
	UserURL(name string) string
	ThumbnailURL(path string) string
}

// Formatter turns a change event into the message one server receives.
type Formatter struct {
	Links          Links
	ChangelogLines int
}

// Format builds the notification of ev for srv. The changelog is only
// rendered when the server shows changelogs, and the server's role, if any,
// is mentioned.
func (f Formatter) Format(ev diff.ChangeEvent, srv db.Server) platform.Message {
	var prefix string
	color := colorUpdated
	switch ev.Kind {
	case diff.Created:
		prefix, color = "New mod:\n", colorNew
	case diff.VersionBumped:
		prefix = "Updated mod:\n"
	case diff.MetadataChanged:
		prefix, color = "Updated mod info:\n", colorMetadata
	}

	embed := platform.Embed{
		Title:     truncate(prefix+EscapeFormatting(ev.Title), maxTitleLen),
		URL:       f.Links.ModURL(ev.Slug),
		Color:     color,
		Thumbnail: f.Links.ThumbnailURL(ev.Thumbnail),
		Timestamp: ev.ReleasedAt,
		Fields: []platform.EmbedField{
			{
				Name:   "**Author**",
				Value:  EscapeFormatting(ev.Owner) + " ([more](" + f.Links.UserURL(ev.Owner) + "))",
				Inline: true,
			},
			{Name: "**Version**", Value: versionField(ev), Inline: true},
		},
	}

	switch {
	case ev.Kind == diff.MetadataChanged:
		embed.Description = truncate(EscapeFormatting(ev.Summary), maxDescriptionLen)
	case srv.ChangelogVisible() && ev.Changelog != nil:
		embed.Description = truncate(RenderChangelog(*ev.Changelog, ev.NewVersion, f.ChangelogLines), maxDescriptionLen)
	}

	msg := platform.Message{Embeds: []platform.Embed{embed}}
	if srv.ModRole != nil {
		role := strconv.FormatInt(*srv.ModRole, 10)
		msg.Content = "<@&" + role + ">"
		msg.MentionRoles = []string{role}
	}
	return msg
}

func versionField(ev diff.ChangeEvent) string {
	if ev.Kind == diff.VersionBumped && ev.PreviousVersion != nil && *ev.PreviousVersion != "" {
		return *ev.PreviousVersion + " → " + ev.NewVersion
	}
	return ev.NewVersion
}

// RenderChangelog renders the section of text for version with bold category
// names. Text without any version section is rendered as is. Output longer
// than maxLines lines is cut and marked. A structured changelog that lacks
// version renders as the empty string.
func RenderChangelog(text, version string, maxLines int) string {
	entries := portal.ParseChangelog(text)
	if len(entries) == 0 {
		return renderFreeForm(text, maxLines)
	}
	entry, ok := portal.FindVersion(entries, version)
	if !ok {
		return ""
	}

	var lines []string
	for _, c := range entry.Categories {
		if c.Name != "" {
			lines = append(lines, "**"+EscapeFormatting(c.Name)+"**")
		}
		for _, e := range c.Entries {
			lines = append(lines, EscapeFormatting(e))
		}
	}
	return joinCapped(lines, maxLines)
}

func renderFreeForm(text string, maxLines int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = EscapeFormatting(strings.TrimRight(l, " \t"))
	}
	return joinCapped(lines, maxLines)
}

func joinCapped(lines []string, maxLines int) string {
	if maxLines > 0 && len(lines) > maxLines {
		lines = append(lines[:maxLines], trimmedMarker)
	}
	return strings.Join(lines, "\n")
}

// EscapeFormatting escapes markdown emphasis characters and defuses mentions.
func EscapeFormatting(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '_', '*', '~':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '@':
			b.WriteRune(r)
			b.WriteRune('\u200b')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate cuts s to at most n runes, ending with an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
