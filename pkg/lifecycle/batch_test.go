package lifecycle

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

func qty(v float64) *float64 { return &v }

func TestValidateProductionBatch_MovesPalletToWorkshop(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	seed(t, repo, "90000000001", pallet.StatusInStock, "A1")

	result, err := e.ValidateProductionBatch(ctx, operator, []Item{{Number: "90000000001"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Skipped)

	p := mustGet(t, repo, "90000000001")
	assert.Equal(t, pallet.StatusInProduction, p.Status)
	assert.Nil(t, p.Location)
	assert.Equal(t, pallet.LocationFree, locationState(t, repo, "A1"))

	statuses, moves := history(t, repo, "90000000001")
	require.Len(t, statuses, 1)
	assert.Equal(t, pallet.StatusInProduction, statuses[0].Status)
	require.Len(t, moves, 1)
	assert.Equal(t, pallet.ZoneWorkshop, moves[0].Zone)
	require.NotNil(t, p.LastMovementAt)
	assert.True(t, p.LastMovementAt.Equal(moves[0].MovedAt))
}

func TestValidateDestructionBatch_MixedStatuses(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	seed(t, repo, "90000000001", pallet.StatusToDestroy, "A1")
	seed(t, repo, "90000000002", pallet.StatusInStock, "A2")

	result, err := e.ValidateDestructionBatch(ctx, operator, []Item{
		{Number: "90000000001"},
		{Number: "90000000002"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Outcomes, 2)

	assert.Equal(t, ItemOutcome{Index: 0, Number: "90000000001", Outcome: OutcomeApplied, Status: pallet.StatusDestroyed}, result.Outcomes[0])
	assert.Equal(t, 1, result.Outcomes[1].Index)
	assert.Equal(t, OutcomeSkipped, result.Outcomes[1].Outcome)
	assert.Equal(t, SkipInvalidTransition, result.Outcomes[1].Reason)

	destroyed := mustGet(t, repo, "90000000001")
	assert.Equal(t, pallet.StatusDestroyed, destroyed.Status)
	assert.Equal(t, pallet.LocationFree, locationState(t, repo, "A1"))
	_, moves := history(t, repo, "90000000001")
	require.Len(t, moves, 1)
	assert.Equal(t, pallet.ZoneDestroyed, moves[0].Zone)

	untouched := mustGet(t, repo, "90000000002")
	assert.Equal(t, pallet.StatusInStock, untouched.Status)
	assert.Equal(t, "A2", untouched.LocationCode())
	assert.Equal(t, pallet.LocationOccupied, locationState(t, repo, "A2"))
}

func TestValidateBatch_PreconditionMismatchLeavesPalletUnchanged(t *testing.T) {
	ops := []struct {
		op     Operation
		status pallet.Status
	}{
		{OpInventory, pallet.StatusInStock},
		{OpDestruction, pallet.StatusToReturn},
		{OpReturn, pallet.StatusToDestroy},
		{OpProductionExit, pallet.StatusToInventory},
	}
	for _, tt := range ops {
		t.Run(string(tt.op), func(t *testing.T) {
			e, repo := newTestEngine(t)
			ctx := context.Background()
			seed(t, repo, "90000000001", tt.status, "A1")
			before := mustGet(t, repo, "90000000001")

			result, err := e.ValidateBatch(ctx, operator, tt.op, []Item{{Number: "90000000001", Quantity: qty(3)}})
			require.NoError(t, err)
			assert.Zero(t, result.Applied)
			assert.Equal(t, SkipInvalidTransition, result.Outcomes[0].Reason)

			assert.Equal(t, before, mustGet(t, repo, "90000000001"))
			assert.Equal(t, pallet.LocationOccupied, locationState(t, repo, "A1"))
			statuses, moves := history(t, repo, "90000000001")
			assert.Empty(t, statuses)
			assert.Empty(t, moves)
		})
	}
}

func TestValidateBatch_SkipReasons(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	seed(t, repo, "90000000001", pallet.StatusToInventory, "A1")
	seed(t, repo, "90000000002", pallet.StatusToInventory, "A2")
	seed(t, repo, "90000000003", pallet.StatusInStock, "B1")

	result, err := e.ValidateInventoryBatch(ctx, operator, []Item{
		{Number: "nope"},
		{Number: ""},
		{Number: "90000000001", Quantity: qty(-1)},
		{Number: "90000000001", Quantity: qty(2.5)},
		{Number: "90000000001", Quantity: qty(math.NaN())},
		{Number: "90000000003"},
		{Number: "90000000001", Status: "Perdue"},
		{Number: "90000000001", Status: "A Inventorier"},
		{Number: "90000000001", Location: "B1"},
		{Number: "90000000002", Quantity: qty(8)},
	})
	require.NoError(t, err)

	var reasons []SkipReason
	for _, out := range result.Outcomes {
		reasons = append(reasons, out.Reason)
	}
	assert.Equal(t, []SkipReason{
		SkipNotFound,
		SkipNotFound,
		SkipInvalidQuantity,
		SkipInvalidQuantity,
		SkipInvalidQuantity,
		SkipInvalidTransition,
		SkipInvalidStatus,
		SkipInvalidStatus,
		SkipLocationOccupied,
		"",
	}, reasons)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 9, result.Skipped)
	for i, out := range result.Outcomes {
		assert.Equal(t, i, out.Index)
	}

	skippedPallet := mustGet(t, repo, "90000000001")
	assert.Equal(t, pallet.StatusToInventory, skippedPallet.Status)
	assert.Equal(t, 12, *skippedPallet.Quantity)
}

func TestValidateInventory(t *testing.T) {
	t.Run("defaults to in stock and updates quantity", func(t *testing.T) {
		e, repo := newTestEngine(t)
		seed(t, repo, "90000000001", pallet.StatusToInventory, "A1")

		out, err := e.ValidateInventory(context.Background(), operator, Item{Number: "90000000001", Quantity: qty(7)})
		require.NoError(t, err)
		assert.True(t, out.Applied())
		assert.Equal(t, pallet.StatusInStock, out.Status)

		p := mustGet(t, repo, "90000000001")
		assert.Equal(t, pallet.StatusInStock, p.Status)
		assert.Equal(t, 7, *p.Quantity)
		assert.Equal(t, "A1", p.LocationCode())
		assert.Equal(t, pallet.LocationOccupied, locationState(t, repo, "A1"))

		statuses, moves := history(t, repo, "90000000001")
		assert.Len(t, statuses, 1)
		assert.Empty(t, moves)
	})

	t.Run("moves to a new location", func(t *testing.T) {
		e, repo := newTestEngine(t)
		seed(t, repo, "90000000001", pallet.StatusToInventory, "A1")

		out, err := e.ValidateInventory(context.Background(), operator, Item{Number: "90000000001", Status: "ToDestroy", Location: "C3"})
		require.NoError(t, err)
		assert.True(t, out.Applied())

		p := mustGet(t, repo, "90000000001")
		assert.Equal(t, pallet.StatusToDestroy, p.Status)
		assert.Equal(t, "C3", p.LocationCode())
		assert.Equal(t, 12, *p.Quantity, "quantity untouched when omitted")
		assert.Equal(t, pallet.LocationFree, locationState(t, repo, "A1"))
		assert.Equal(t, pallet.LocationOccupied, locationState(t, repo, "C3"))
	})

	t.Run("release status clears location", func(t *testing.T) {
		e, repo := newTestEngine(t)
		seed(t, repo, "90000000001", pallet.StatusToInventory, "A1")

		out, err := e.ValidateInventory(context.Background(), operator, Item{Number: "90000000001", Status: "Détruite", Location: "C3"})
		require.NoError(t, err)
		assert.True(t, out.Applied())

		p := mustGet(t, repo, "90000000001")
		assert.Equal(t, pallet.StatusDestroyed, p.Status)
		assert.Nil(t, p.Location)
		assert.Equal(t, pallet.LocationFree, locationState(t, repo, "A1"))
		loc, err := repo.GetLocation(context.Background(), "C3")
		require.NoError(t, err)
		assert.Nil(t, loc)
	})
}

func TestValidateSingleExits(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	seed(t, repo, "90000000001", pallet.StatusToReturn, "A1")
	seed(t, repo, "90000000002", pallet.StatusToDestroy, "A2")
	seed(t, repo, "90000000003", pallet.StatusInStock, "A3")

	out, err := e.ValidateReturn(ctx, operator, "90000000001")
	require.NoError(t, err)
	assert.True(t, out.Applied())
	assert.Equal(t, pallet.StatusReturned, mustGet(t, repo, "90000000001").Status)

	out, err = e.ValidateDestruction(ctx, operator, "90000000002")
	require.NoError(t, err)
	assert.True(t, out.Applied())

	out, err = e.ValidateProductionExit(ctx, operator, "90000000003")
	require.NoError(t, err)
	assert.True(t, out.Applied())

	out, err = e.ValidateProductionExit(ctx, operator, "90000000003")
	require.NoError(t, err)
	assert.False(t, out.Applied())
	assert.Equal(t, SkipInvalidTransition, out.Reason)

	locs, err := repo.ListLocations(ctx, pallet.LocationOccupied)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestValidateBatch_RejectsBadInput(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ValidateBatch(ctx, operator, OpIntake, nil)
	assert.ErrorIs(t, err, pallet.ErrValidation)

	_, err = e.ValidateBatch(ctx, operator, Operation("teleport"), nil)
	assert.ErrorIs(t, err, pallet.ErrValidation)

	_, err = e.ValidateDestructionBatch(ctx, pallet.Operator{}, nil)
	assert.ErrorIs(t, err, pallet.ErrValidation)

	result, err := e.ValidateDestructionBatch(ctx, operator, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.Empty(t, result.Outcomes)
}

func TestValidateBatch_DuplicateItemsAppliedOnce(t *testing.T) {
	e, repo := newTestEngine(t)
	seed(t, repo, "90000000001", pallet.StatusToReturn, "A1")

	result, err := e.ValidateReturnBatch(context.Background(), operator, []Item{
		{Number: "90000000001"},
		{Number: "90000000001"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, SkipInvalidTransition, result.Outcomes[1].Reason)
}
