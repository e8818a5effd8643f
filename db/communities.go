package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityStore reads and edits server preferences and subscriptions.
// The notifier core only calls Load; the setters back the operator CLI.
type CommunityStore struct {
	db *gorm.DB
}

func NewCommunityStore(db *gorm.DB) *CommunityStore {
	return &CommunityStore{db: db}
}

// Communities is everything subscription resolution needs, read in one go.
type Communities struct {
	Servers []Server
	Mods    []SubscribedMod
	Authors []SubscribedAuthor
}

// Load reads all servers and subscriptions inside one read transaction so the
// three tables are consistent with each other.
func (s *CommunityStore) Load(ctx context.Context) (Communities, error) {
	var c Communities
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Find(&c.Servers).Error; err != nil {
			return fmt.Errorf("servers: %w", err)
		}
		if err := tx.Find(&c.Mods).Error; err != nil {
			return fmt.Errorf("subscribed mods: %w", err)
		}
		if err := tx.Find(&c.Authors).Error; err != nil {
			return fmt.Errorf("subscribed authors: %w", err)
		}
		return nil
	})
	if err != nil {
		return Communities{}, &PersistenceError{Op: "load communities", Err: err}
	}
	return c, nil
}

// GetServer returns the server row, or gorm.ErrRecordNotFound.
func (s *CommunityStore) GetServer(ctx context.Context, serverID int64) (*Server, error) {
	var srv Server
	if err := s.db.WithContext(ctx).First(&srv, "server_id = ?", serverID).Error; err != nil {
		return nil, err
	}
	return &srv, nil
}

// upsertServer creates the server row if needed and sets the given column.
func (s *CommunityStore) upsertServer(ctx context.Context, srv Server, column string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(&srv).Error
}

func (s *CommunityStore) SetUpdatesChannel(ctx context.Context, serverID int64, channelID *int64) error {
	return s.upsertServer(ctx, Server{ServerID: serverID, UpdatesChannel: channelID}, "updates_channel")
}

func (s *CommunityStore) SetModRole(ctx context.Context, serverID int64, roleID *int64) error {
	return s.upsertServer(ctx, Server{ServerID: serverID, ModRole: roleID}, "mod_role")
}

func (s *CommunityStore) SetShowChangelog(ctx context.Context, serverID int64, show bool) error {
	return s.upsertServer(ctx, Server{ServerID: serverID, ShowChangelog: &show}, "show_changelog")
}

func (s *CommunityStore) SetNotifyMetadata(ctx context.Context, serverID int64, notify bool) error {
	return s.upsertServer(ctx, Server{ServerID: serverID, NotifyMetadata: notify}, "notify_metadata")
}

func (s *CommunityStore) AddModSubscription(ctx context.Context, serverID int64, modName string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SubscribedMod{ServerID: serverID, ModName: modName}).Error
}

func (s *CommunityStore) RemoveModSubscription(ctx context.Context, serverID int64, modName string) error {
	return s.db.WithContext(ctx).
		Where("server_id = ? AND mod_name = ?", serverID, modName).
		Delete(&SubscribedMod{}).Error
}

func (s *CommunityStore) AddAuthorSubscription(ctx context.Context, serverID int64, author string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SubscribedAuthor{ServerID: serverID, AuthorName: author}).Error
}

func (s *CommunityStore) RemoveAuthorSubscription(ctx context.Context, serverID int64, author string) error {
	return s.db.WithContext(ctx).
		Where("server_id = ? AND author_name = ?", serverID, author).
		Delete(&SubscribedAuthor{}).Error
}

// Subscriptions returns the mod and author subscriptions of one server.
func (s *CommunityStore) Subscriptions(ctx context.Context, serverID int64) (mods []string, authors []string, err error) {
	err = s.db.WithContext(ctx).Model(&SubscribedMod{}).
		Where("server_id = ?", serverID).Order("mod_name").Pluck("mod_name", &mods).Error
	if err != nil {
		return nil, nil, err
	}
	err = s.db.WithContext(ctx).Model(&SubscribedAuthor{}).
		Where("server_id = ?", serverID).Order("author_name").Pluck("author_name", &authors).Error
	if err != nil {
		return nil, nil, err
	}
	return mods, authors, nil
}

// ClearServer removes every row that belongs to serverID.
func (s *CommunityStore) ClearServer(ctx context.Context, serverID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("server_id = ?", serverID).Delete(&Server{}).Error; err != nil {
			return err
		}
		if err := tx.Where("server_id = ?", serverID).Delete(&SubscribedMod{}).Error; err != nil {
			return err
		}
		return tx.Where("server_id = ?", serverID).Delete(&SubscribedAuthor{}).Error
	})
}
