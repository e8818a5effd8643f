package db

import (
	"time"

	"gorm.io/gorm"
)

// Mod is the last observed state of a mod on the portal.
type Mod struct {
	gorm.Model
	Name            string    `gorm:"uniqueIndex;not null"` // Portal mod name (unique identifier)
	Title           string    // Display title
	Owner           string    `gorm:"index"` // Portal user that owns the mod
	Summary         string    // Short description
	Category        string    // Category display name
	DownloadsCount  int       // Download count at last observation
	FactorioVersion string    // Game version the latest release targets
	Version         string    // Latest release version string
	ReleasedAt      time.Time // Release time of the latest release
	Thumbnail       string    // Thumbnail path on the assets host
}

// Server holds the notification preferences of one community.
type Server struct {
	ServerID       int64  `gorm:"primaryKey;autoIncrement:false"`
	UpdatesChannel *int64 // nil disables notifications
	ModRole        *int64 // Role mentioned in every notification, if set
	ShowChangelog  *bool  // nil means true
	NotifyMetadata bool   // Opt in to metadata-only change notifications
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChangelogVisible reports whether changelogs are included in notifications.
func (s Server) ChangelogVisible() bool {
	return s.ShowChangelog == nil || *s.ShowChangelog
}

// SubscribedMod restricts a server's notifications to a mod.
type SubscribedMod struct {
	ServerID int64  `gorm:"primaryKey;autoIncrement:false"`
	ModName  string `gorm:"primaryKey"`
}

// SubscribedAuthor restricts a server's notifications to the mods of an author.
type SubscribedAuthor struct {
	ServerID   int64  `gorm:"primaryKey;autoIncrement:false"`
	AuthorName string `gorm:"primaryKey"`
}
