package pallet

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solaius/pallet-registry/pkg/db"
)

// ArchiveFilter narrows an archive listing.
type ArchiveFilter struct {
	Number string
	Client string
	Status Status
	Limit  int
}

// InsertArchive copies rows into SPR_Palette.
func (r *Repository) InsertArchive(ctx context.Context, rows []ArchivedPallet) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		if db.IsDuplicate(err) {
			return &ValidationError{Field: "numPalette", Message: "pallet already archived"}
		}
		return storeErr("insert archive rows", err)
	}
	return nil
}

// GetArchive returns the archive row for a pallet number, or nil.
func (r *Repository) GetArchive(ctx context.Context, number string) (*ArchivedPallet, error) {
	var a ArchivedPallet
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get archive row", err)
	}
	return &a, nil
}

// DeleteArchive removes one archive row and returns the rows deleted.
func (r *Repository) DeleteArchive(ctx context.Context, number string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Delete(&ArchivedPallet{})
	if result.Error != nil {
		return 0, storeErr("delete archive row", result.Error)
	}
	return result.RowsAffected, nil
}

// ListArchive returns archive rows matching the filter, ordered by number.
func (r *Repository) ListArchive(ctx context.Context, f ArchiveFilter) ([]ArchivedPallet, error) {
	q := r.db.WithContext(ctx)
	if f.Number != "" {
		q = q.Where(clause.Like{Column: colNumber, Value: "%" + f.Number + "%"})
	}
	if f.Client != "" {
		q = q.Where(clause.Like{Column: colClient, Value: "%" + f.Client + "%"})
	}
	if f.Status != "" {
		q = q.Where(clause.Eq{Column: colStatus, Value: f.Status})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []ArchivedPallet
	if err := q.Order(clause.OrderByColumn{Column: colNumber}).Find(&rows).Error; err != nil {
		return nil, storeErr("list archive rows", err)
	}
	return rows, nil
}

// ArchiveOlderThan returns archive rows whose last movement is before the
// cutoff.
func (r *Repository) ArchiveOlderThan(ctx context.Context, before time.Time) ([]ArchivedPallet, error) {
	var rows []ArchivedPallet
	err := r.db.WithContext(ctx).
		Where(clause.Lt{Column: colLastMovementAt, Value: before}).
		Order(clause.OrderByColumn{Column: colNumber}).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("select expired archive rows", err)
	}
	return rows, nil
}

// DeleteArchiveOlderThan deletes the given archive rows, restricted to those
// still older than the cutoff. It returns the number of rows deleted.
func (r *Repository) DeleteArchiveOlderThan(ctx context.Context, numbers []string, before time.Time) (int64, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where(clause.IN{Column: colNumber, Values: toAny(numbers)}).
		Where(clause.Lt{Column: colLastMovementAt, Value: before}).
		Delete(&ArchivedPallet{})
	if result.Error != nil {
		return 0, storeErr("delete expired archive rows", result.Error)
	}
	return result.RowsAffected, nil
}
