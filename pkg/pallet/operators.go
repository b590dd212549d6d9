package pallet

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOperator returns the account for a login, or nil.
func (r *Repository) GetOperator(ctx context.Context, login string) (*OperatorAccount, error) {
	var acct OperatorAccount
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colLogin, Value: login}).
		Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get operator", err)
	}
	return &acct, nil
}

// SaveOperator inserts or replaces an operator account.
func (r *Repository) SaveOperator(ctx context.Context, acct *OperatorAccount) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{colLogin},
		DoUpdates: clause.AssignmentColumns([]string{"Password", "Role"}),
	}).Create(acct).Error
	if err != nil {
		return storeErr("save operator", err)
	}
	return nil
}
