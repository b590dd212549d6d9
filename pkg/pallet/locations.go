package pallet

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetLocation returns the ledger row for a location code, or nil.
func (r *Repository) GetLocation(ctx context.Context, code string) (*Location, error) {
	var loc Location
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colLocation, Value: code}).
		Take(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get location", err)
	}
	return &loc, nil
}

// SetLocationState updates the state of an existing location and returns the
// number of rows changed. Unknown codes are left alone.
func (r *Repository) SetLocationState(ctx context.Context, code string, state LocationState) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Location{}).
		Where(clause.Eq{Column: colLocation, Value: code}).
		Update("Etat", state)
	if result.Error != nil {
		return 0, storeErr("set location state", result.Error)
	}
	return result.RowsAffected, nil
}

// UpsertLocation inserts the location with the given state or updates the
// state of the existing row.
func (r *Repository) UpsertLocation(ctx context.Context, code string, state LocationState) error {
	loc := Location{Code: code, State: state}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{colLocation},
		DoUpdates: clause.AssignmentColumns([]string{"Etat"}),
	}).Create(&loc).Error
	if err != nil {
		return storeErr("upsert location", err)
	}
	return nil
}

// LockLocation makes sure the ledger row for code exists and holds a row
// lock on it until the transaction ends. A row created here starts Libre.
// Callers that check and then claim a location lock it first, so two
// transactions cannot both find it free. SQLite serialises writers and takes
// no row lock.
func (r *Repository) LockLocation(ctx context.Context, code string) error {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{colLocation},
		DoNothing: true,
	}).Create(&Location{Code: code, State: LocationFree}).Error
	if err != nil {
		return storeErr("create location", err)
	}
	if !r.supportsRowLocks() {
		return nil
	}
	var loc Location
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(clause.Eq{Column: colLocation, Value: code}).
		Take(&loc).Error
	if err != nil {
		return storeErr("lock location", err)
	}
	return nil
}

// ListLocations returns the ledger ordered by code, optionally restricted to
// one state.
func (r *Repository) ListLocations(ctx context.Context, state LocationState) ([]Location, error) {
	q := r.db.WithContext(ctx)
	if state != "" {
		q = q.Where(clause.Eq{Column: colState, Value: state})
	}
	var locs []Location
	if err := q.Order(clause.OrderByColumn{Column: colLocation}).Find(&locs).Error; err != nil {
		return nil, storeErr("list locations", err)
	}
	return locs, nil
}

// Holder returns the live pallet, other than exclude, that still physically
// holds the location, or nil. Pallets in a release status never hold one.
// The read is a locking read where the dialect supports it, so it sees rows
// committed by a transaction that held the location lock before us.
func (r *Repository) Holder(ctx context.Context, code, exclude string) (*Pallet, error) {
	var released []any
	for _, s := range ReleaseStatuses.ToSlice() {
		released = append(released, s)
	}
	q := r.db.WithContext(ctx)
	if r.supportsRowLocks() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p Pallet
	err := q.
		Where(clause.Eq{Column: colLocation, Value: code}).
		Where(clause.Neq{Column: colNumber, Value: exclude}).
		Where(clause.Not(clause.IN{Column: colStatus, Values: released})).
		Order(clause.OrderByColumn{Column: colNumber}).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find location holder", err)
	}
	return &p, nil
}
