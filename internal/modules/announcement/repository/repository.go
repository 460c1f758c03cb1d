package repository

import (
	"context"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Audience selects the announcements a reader may see at a point in time.
type Audience struct {
	Visibilities []entity.AnnouncementVisibility
	Now          time.Time
}

type AnnouncementFilter struct {
	Audience
	Category entity.AnnouncementCategory
	Search   string
	Limit    int
	Offset   int
}

type AnnouncementRepository interface {
	WithTx(tx *gorm.DB) AnnouncementRepository
	Create(ctx context.Context, a *entity.Announcement) error
	// FindByID returns active announcements only.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Announcement, error)
	// FindByIDForUpdate row-locks the active announcement until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Announcement, error)
	Update(ctx context.Context, a *entity.Announcement) error
	List(ctx context.Context, filter AnnouncementFilter) ([]entity.Announcement, int64, error)
	ReadIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	CountUnread(ctx context.Context, userID uuid.UUID, audience Audience) (int64, error)
	// MarkRead keeps the first read time when the pair already exists.
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) error
	VisibleIDs(ctx context.Context, audience Audience) ([]uuid.UUID, error)
}

type announcementRepository struct {
	db *gorm.DB
}

func NewAnnouncementRepository(db *gorm.DB) AnnouncementRepository {
	return &announcementRepository{db: db}
}

func (r *announcementRepository) WithTx(tx *gorm.DB) AnnouncementRepository {
	return &announcementRepository{db: tx}
}

func (r *announcementRepository) Create(ctx context.Context, a *entity.Announcement) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error
}

func (r *announcementRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Announcement, error) {
	var a entity.Announcement
	err := r.db.WithContext(ctx).
		Preload("Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "full_name", "role")
		}).
		Where("id = ? AND is_active = ?", id, true).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *announcementRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Announcement, error) {
	var a entity.Announcement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_active = ?", id, true).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *announcementRepository) Update(ctx context.Context, a *entity.Announcement) error {
	return r.db.WithContext(ctx).Model(&entity.Announcement{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"title":      a.Title,
			"content":    a.Content,
			"category":   a.Category,
			"priority":   a.Priority,
			"visibility": a.Visibility,
			"is_pinned":  a.IsPinned,
			"is_active":  a.IsActive,
			"expires_at": a.ExpiresAt,
			"updated_at": a.UpdatedAt,
		}).Error
}

func (r *announcementRepository) visible(ctx context.Context, audience Audience) *gorm.DB {
	return r.db.WithContext(ctx).Model(&entity.Announcement{}).
		Where("announcements.is_active = ?", true).
		Where("announcements.visibility IN ?", audience.Visibilities).
		Where("announcements.expires_at IS NULL OR announcements.expires_at > ?", audience.Now)
}

func (r *announcementRepository) List(ctx context.Context, filter AnnouncementFilter) ([]entity.Announcement, int64, error) {
	if len(filter.Visibilities) == 0 {
		return []entity.Announcement{}, 0, nil
	}

	query := r.visible(ctx, filter.Audience)
	if filter.Category != "" {
		query = query.Where("announcements.category = ?", filter.Category)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(announcements.title) LIKE ? OR LOWER(announcements.content) LIKE ?", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var announcements []entity.Announcement
	err := query.
		Preload("Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "full_name", "role")
		}).
		Order("announcements.is_pinned desc").
		Order("announcements.created_at desc").
		Find(&announcements).Error
	return announcements, total, err
}

func (r *announcementRepository) ReadIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	read := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return read, nil
	}

	var found []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.AnnouncementRead{}).
		Where("user_id = ? AND announcement_id IN ?", userID, ids).
		Pluck("announcement_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		read[id] = true
	}
	return read, nil
}

func (r *announcementRepository) CountUnread(ctx context.Context, userID uuid.UUID, audience Audience) (int64, error) {
	if len(audience.Visibilities) == 0 {
		return 0, nil
	}

	reads := r.db.WithContext(ctx).Model(&entity.AnnouncementRead{}).
		Select("announcement_id").
		Where("user_id = ?", userID)

	var count int64
	err := r.visible(ctx, audience).
		Where("announcements.id NOT IN (?)", reads).
		Count(&count).Error
	return count, err
}

func (r *announcementRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	reads := make([]entity.AnnouncementRead, 0, len(ids))
	for _, id := range ids {
		reads = append(reads, entity.AnnouncementRead{AnnouncementID: id, UserID: userID, ReadAt: at})
	}
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "announcement_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		CreateInBatches(reads, 200).Error
}

func (r *announcementRepository) VisibleIDs(ctx context.Context, audience Audience) ([]uuid.UUID, error) {
	if len(audience.Visibilities) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.visible(ctx, audience).Pluck("announcements.id", &ids).Error
	return ids, err
}
