package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Branch is one monitored company branch. The dashboard only needs it as a
// directory from id to display name; branch management itself lives in the
// upstream admin application.
type Branch struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Name   string `gorm:"size:255;not null"`
	City   string `gorm:"size:128"`
	Active bool   `gorm:"default:true"`
}

// BranchDirectory resolves branch ids to display names.
type BranchDirectory struct {
	db *gorm.DB
}

func NewBranchDirectory(db *gorm.DB) *BranchDirectory {
	return &BranchDirectory{db: db}
}

// Names returns the display names for ids. Ids without a branches row are
// simply absent from the map; callers treat the name as unknown.
func (d *BranchDirectory) Names(ctx context.Context, ids []uint) (map[uint]string, error) {
	if len(ids) == 0 {
		return map[uint]string{}, nil
	}

	var rows []Branch
	if err := d.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	names := make(map[uint]string, len(rows))
	for _, b := range rows {
		names[b.ID] = b.Name
	}
	return names, nil
}
