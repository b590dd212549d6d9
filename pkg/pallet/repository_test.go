package pallet

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB creates an in-memory SQLite DB with the pallet tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, NewRepository(db).AutoMigrate())
	return db
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(newTestDB(t))
}

func seedPallet(t *testing.T, repo *Repository, number, client, article string, qty int, loc string, status Status) *Pallet {
	t.Helper()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p := &Pallet{
		Number:          number,
		Client:          client,
		Article:         article,
		Quantity:        &qty,
		Status:          status,
		StatusChangedAt: &now,
		StatusChangedBy: "seed",
		LastMovementAt:  &now,
	}
	if loc != "" {
		p.Location = &loc
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestRepository_GetAndUpdate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	got, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	seedPallet(t, repo, "90000000001", "ACME", "Vis", 10, "A1", StatusInStock)

	got, err = repo.GetForUpdate(ctx, "90000000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ACME", got.Client)
	assert.Equal(t, "A1", got.LocationCode())
	assert.Equal(t, 10, *got.Quantity)

	require.NoError(t, repo.Update(ctx, "90000000001", map[string]any{
		"Statut":      StatusToDestroy,
		"Emplacement": nil,
	}))
	got, err = repo.Get(ctx, "90000000001")
	require.NoError(t, err)
	assert.Equal(t, StatusToDestroy, got.Status)
	assert.Nil(t, got.Location)
	assert.Equal(t, "", got.LocationCode())

	ok, err := repo.Exists(ctx, "90000000001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_ListByStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "90000000002", "ACME", "Vis", 10, "A2", StatusToDestroy)
	seedPallet(t, repo, "90000000001", "ACME", "Ecrou", 5, "A1", StatusToDestroy)
	seedPallet(t, repo, "90000000003", "Globex", "Vis", 1, "B1", StatusInStock)

	rows, err := repo.ListByStatus(ctx, StatusToDestroy)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "90000000001", rows[0].Number)
	assert.Equal(t, "Ecrou", rows[0].Article)
	assert.Equal(t, "A1", *rows[0].Location)
	assert.Equal(t, "90000000002", rows[1].Number)

	rows, err = repo.ListByStatus(ctx, StatusReturned)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepository_Search(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "90000000001", "ACME", "Vis", 10, "A1", StatusInStock)
	seedPallet(t, repo, "90000000002", "ACME Corp", "Ecrou", 3, "A2", StatusToDestroy)
	seedPallet(t, repo, "90000000003", "Globex", "Vis", 40, "B1", StatusInStock)

	got, err := repo.Search(ctx, SearchFilter{Client: "ACME"})
	require.NoError(t, err)
	assert.Equal(t, []string{"90000000001", "90000000002"}, numbersOf(got))

	got, err = repo.Search(ctx, SearchFilter{Article: "Vis", Status: StatusInStock, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"90000000001"}, numbersOf(got))

	got, err = repo.Search(ctx, SearchFilter{Location: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"90000000003"}, numbersOf(got))

	_, err = repo.Search(ctx, SearchFilter{Expr: "bogus ="})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRepository_History(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendStatusEvent(ctx, &StatusEvent{Number: "1", Status: StatusInStock, ChangedAt: t0, ChangedBy: "a"}))
	require.NoError(t, repo.AppendStatusEvent(ctx, &StatusEvent{Number: "1", Status: StatusToDestroy, ChangedAt: t0.Add(time.Hour), ChangedBy: "b"}))
	require.NoError(t, repo.AppendStatusEvent(ctx, &StatusEvent{Number: "2", Status: StatusInStock, ChangedAt: t0, ChangedBy: "a"}))
	require.NoError(t, repo.AppendMovementEvent(ctx, &MovementEvent{Number: "1", MovedAt: t0, Zone: ZoneWarehouse}))

	events, err := repo.StatusHistory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, StatusToDestroy, events[0].Status)
	assert.Equal(t, "b", events[0].ChangedBy)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)

	moves, err := repo.MovementHistory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, ZoneWarehouse, moves[0].Zone)
}

func TestRepository_CountByStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "90000000001", "ACME", "Vis", 1, "A1", StatusInStock)
	seedPallet(t, repo, "90000000002", "ACME", "Vis", 1, "A2", StatusInStock)
	seedPallet(t, repo, "90000000003", "ACME", "Vis", 1, "", StatusDestroyed)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[StatusInStock])
	assert.Equal(t, int64(1), counts[StatusDestroyed])
	assert.Zero(t, counts[StatusReturned])
}

func TestRepository_NextNumber(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	next, err := repo.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, FirstPalletNumber, next)

	seedPallet(t, repo, "90000000041", "ACME", "Vis", 1, "", StatusInStock)
	seedPallet(t, repo, "9000000009X", "ACME", "Vis", 1, "", StatusInStock)
	seedPallet(t, repo, "123", "ACME", "Vis", 1, "", StatusInStock)
	seedPallet(t, repo, "990000000000", "ACME", "Vis", 1, "", StatusInStock)

	next, err = repo.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "90000000042", next)
}

func TestRepository_ClientsAndArticles(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "1", "Globex", "Vis", 1, "", StatusInStock)
	seedPallet(t, repo, "2", "ACME", "Vis", 1, "", StatusInStock)
	seedPallet(t, repo, "3", "ACME", "Ecrou", 1, "", StatusInStock)
	seedPallet(t, repo, "4", "", "Clou", 1, "", StatusInStock)

	clients, err := repo.Clients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "Globex"}, clients)

	articles, err := repo.Articles(ctx, "ACM")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ecrou", "Vis"}, articles)
}

func TestRepository_Locations(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertLocation(ctx, "A1", LocationFree))
	require.NoError(t, repo.UpsertLocation(ctx, "A2", LocationFree))
	require.NoError(t, repo.UpsertLocation(ctx, "A1", LocationOccupied))

	loc, err := repo.GetLocation(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, LocationOccupied, loc.State)

	n, err := repo.SetLocationState(ctx, "A2", LocationOccupied)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.SetLocationState(ctx, "ZZ", LocationOccupied)
	require.NoError(t, err)
	assert.Zero(t, n)

	missing, err := repo.GetLocation(ctx, "ZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)

	free, err := repo.ListLocations(ctx, LocationFree)
	require.NoError(t, err)
	assert.Empty(t, free)

	all, err := repo.ListLocations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_Holder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "1", "ACME", "Vis", 1, "A1", StatusInStock)
	seedPallet(t, repo, "2", "ACME", "Vis", 1, "A2", StatusDestroyed)

	holder, err := repo.Holder(ctx, "A1", "")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "1", holder.Number)

	holder, err = repo.Holder(ctx, "A1", "1")
	require.NoError(t, err)
	assert.Nil(t, holder)

	holder, err = repo.Holder(ctx, "A2", "")
	require.NoError(t, err)
	assert.Nil(t, holder, "a released pallet does not hold its old location")
}

func TestRepository_LockLocation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.LockLocation(ctx, "N1"))
	loc, err := repo.GetLocation(ctx, "N1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, LocationFree, loc.State)

	require.NoError(t, repo.UpsertLocation(ctx, "N1", LocationOccupied))
	require.NoError(t, repo.LockLocation(ctx, "N1"))
	loc, err = repo.GetLocation(ctx, "N1")
	require.NoError(t, err)
	assert.Equal(t, LocationOccupied, loc.State, "locking leaves an existing row untouched")

	all, err := repo.ListLocations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_PurgeSelectionAndDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "1", "ACME", "Vis", 1, "", StatusDestroyed)
	seedPallet(t, repo, "2", "ACME", "Vis", 1, "A1", StatusInStock)
	require.NoError(t, repo.AppendStatusEvent(ctx, &StatusEvent{Number: "1", Status: StatusDestroyed, ChangedAt: time.Now().UTC()}))
	require.NoError(t, repo.AppendMovementEvent(ctx, &MovementEvent{Number: "1", MovedAt: time.Now().UTC(), Zone: ZoneDestroyed}))

	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rows, err := repo.SelectForPurge(ctx, TerminalStatuses, cutoff)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Number)

	rows, err = repo.SelectForPurge(ctx, TerminalStatuses, cutoff.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := repo.DeleteWithHistory(ctx, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := repo.StatusHistory(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, events)
	moves, err := repo.MovementHistory(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, moves)

	ok, err := repo.Exists(ctx, "2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_Archive(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	old := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loc := "A1"
	rows := []ArchivedPallet{
		{Number: "1", Client: "ACME", Status: StatusDestroyed, LastMovementAt: &old},
		{Number: "2", Client: "Globex", Status: StatusReturned, LastMovementAt: &recent, Location: &loc},
	}
	require.NoError(t, repo.InsertArchive(ctx, rows))
	require.NoError(t, repo.InsertArchive(ctx, nil))

	got, err := repo.GetArchive(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, got)
	live := got.Live()
	assert.Equal(t, "A1", live.LocationCode())
	assert.Equal(t, *got, live.Archive())

	listed, err := repo.ListArchive(ctx, ArchiveFilter{Client: "Glo"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "2", listed[0].Number)

	listed, err = repo.ListArchive(ctx, ArchiveFilter{Status: StatusDestroyed})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	cutoff := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	expired, err := repo.ArchiveOlderThan(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "1", expired[0].Number)

	n, err := repo.DeleteArchiveOlderThan(ctx, []string{"1", "2"}, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "recent rows survive even when listed")

	n, err = repo.DeleteArchive(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.DeleteArchive(ctx, "2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_Operators(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	got, err := repo.GetOperator(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SaveOperator(ctx, &OperatorAccount{Login: "alice", PasswordHash: "h1", Role: RoleUser}))
	require.NoError(t, repo.SaveOperator(ctx, &OperatorAccount{Login: "alice", PasswordHash: "h2", Role: RoleAdmin}))

	got, err = repo.GetOperator(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.Equal(t, RoleAdmin, got.Role)
}

func TestRepository_CreateDuplicate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedPallet(t, repo, "90000000001", "ACME", "Vis", 1, "", StatusInStock)
	err := repo.Create(ctx, &Pallet{Number: "90000000001"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, repo.InsertArchive(ctx, []ArchivedPallet{{Number: "1"}}))
	err = repo.InsertArchive(ctx, []ArchivedPallet{{Number: "1"}})
	assert.ErrorIs(t, err, ErrValidation)
}
