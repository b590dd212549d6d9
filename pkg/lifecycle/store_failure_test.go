package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return NewEngine(db, Config{Clock: stepClock()}), mock
}

func TestValidateBatch_StoreErrorRollsBackWholeBatch(t *testing.T) {
	e, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `InfoPalette`").
		WillReturnRows(sqlmock.NewRows([]string{"NumPalette", "Statut", "Emplacement"}).
			AddRow("90000000001", string(pallet.StatusToDestroy), "A1"))
	mock.ExpectExec("INSERT INTO `EmplacementEntrepot`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM `EmplacementEntrepot` (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"Emplacement", "Etat"}).AddRow("A1", string(pallet.LocationOccupied)))
	mock.ExpectExec("UPDATE `InfoPalette`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `STT_Palette`").WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	result, err := e.ValidateDestructionBatch(context.Background(), operator, []Item{
		{Number: "90000000001"},
		{Number: "90000000002"},
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, pallet.ErrStore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntake_StoreErrorOnRead(t *testing.T) {
	e, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `InfoPalette`").WillReturnError(errors.New("server has gone away"))
	mock.ExpectRollback()

	err := e.Intake(context.Background(), operator, "90000000001", "A1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pallet.ErrStore)
	assert.NotErrorIs(t, err, pallet.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntake_LocksLocationBeforeHolderCheck(t *testing.T) {
	e, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `InfoPalette` (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"NumPalette", "Statut"}).
			AddRow("90000000002", string(pallet.StatusInProduction)))
	mock.ExpectExec("INSERT INTO `EmplacementEntrepot` (.+) ON DUPLICATE KEY").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM `EmplacementEntrepot` (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"Emplacement", "Etat"}).AddRow("A1", string(pallet.LocationFree)))
	mock.ExpectQuery("SELECT (.+) FROM `InfoPalette` (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"NumPalette", "Statut", "Emplacement"}).
			AddRow("90000000001", string(pallet.StatusInStock), "A1"))
	mock.ExpectRollback()

	err := e.Intake(context.Background(), operator, "90000000002", "A1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pallet.ErrValidation)
	assert.Contains(t, err.Error(), "90000000001")
	assert.NoError(t, mock.ExpectationsWereMet())
}
