package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Allocator keeps the location ledger in step with pallet placement. Every
// method runs on the transaction-bound repository it is given, so the ledger
// and the pallet rows commit or roll back together.
type Allocator struct {
	logger *slog.Logger
}

// NewAllocator creates an allocator. A nil logger uses slog.Default().
func NewAllocator(logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{logger: logger}
}

// Release marks the location free. Empty and unknown codes are a no-op, as
// is a location still held by a live pallet other than number.
func (a *Allocator) Release(ctx context.Context, repo *pallet.Repository, code, number string) error {
	code = normalizeLocation(code)
	if code == "" {
		return nil
	}
	holder, err := repo.Holder(ctx, code, number)
	if err != nil {
		return err
	}
	if holder != nil {
		a.logger.Warn("location still held, not released",
			"location", code, "pallet", number, "holder", holder.Number)
		return nil
	}
	n, err := repo.SetLocationState(ctx, code, pallet.LocationFree)
	if err != nil {
		return err
	}
	if n == 0 {
		a.logger.Debug("release of unknown location ignored", "location", code)
	}
	return nil
}

// Acquire marks the location occupied, creating it when first used.
func (a *Allocator) Acquire(ctx context.Context, repo *pallet.Repository, code string) error {
	code = normalizeLocation(code)
	if code == "" {
		return &pallet.ValidationError{Field: "emplacement", Message: "location is required"}
	}
	return repo.UpsertLocation(ctx, code, pallet.LocationOccupied)
}

// Lock takes the ledger row lock on every non-empty code, in sorted order
// so that two transactions touching the same pair of locations cannot
// deadlock. Locks are held until the surrounding transaction ends.
func (a *Allocator) Lock(ctx context.Context, repo *pallet.Repository, codes ...string) error {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, c := range codes {
		if c = normalizeLocation(c); c != "" {
			set.Add(c)
		}
	}
	sorted := set.ToSlice()
	slices.Sort(sorted)
	for _, c := range sorted {
		if err := repo.LockLocation(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// CheckAvailable returns a ValidationError when a live pallet other than
// number physically holds the location. The location row is locked before
// the holder is read, so a concurrent claim waits for this transaction.
func (a *Allocator) CheckAvailable(ctx context.Context, repo *pallet.Repository, code, number string) error {
	code = normalizeLocation(code)
	if code == "" {
		return nil
	}
	if err := repo.LockLocation(ctx, code); err != nil {
		return err
	}
	holder, err := repo.Holder(ctx, code, number)
	if err != nil {
		return err
	}
	if holder != nil {
		return &pallet.ValidationError{
			Field:   "emplacement",
			Message: fmt.Sprintf("location %s is occupied by pallet %s", code, holder.Number),
		}
	}
	return nil
}

// Move releases from and acquires to. Equal codes only re-assert occupancy.
func (a *Allocator) Move(ctx context.Context, repo *pallet.Repository, number, from, to string) error {
	from, to = normalizeLocation(from), normalizeLocation(to)
	if from != "" && from != to {
		if err := a.Release(ctx, repo, from, number); err != nil {
			return err
		}
	}
	if to == "" {
		return nil
	}
	return a.Acquire(ctx, repo, to)
}

func normalizeLocation(code string) string {
	return strings.TrimSpace(code)
}
