package archive

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/metrics"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Config wires a Manager. Zero values select defaults.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Manager archives, restores and expires pallets. Purge and Restore each
// run in one transaction.
type Manager struct {
	db      *gorm.DB
	repo    *pallet.Repository
	alloc   *lifecycle.Allocator
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	tracer  trace.Tracer
}

// NewManager creates a manager over db.
func NewManager(db *gorm.DB, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		db:      db,
		repo:    pallet.NewRepository(db),
		alloc:   lifecycle.NewAllocator(cfg.Logger),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		tracer:  otel.Tracer("pallet-registry/archive"),
	}
}

func (m *Manager) now() time.Time {
	return m.clock().UTC().Truncate(time.Microsecond)
}

func (m *Manager) inTx(ctx context.Context, fn func(repo *pallet.Repository) error) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(m.repo.WithTx(tx))
	})
	return pallet.AsStoreError("transaction", err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// PurgeResult lists the pallets moved to the archive.
type PurgeResult struct {
	Archived int       `json:"archived"`
	Numbers  []string  `json:"numbers"`
	Cutoff   time.Time `json:"cutoff"`
}

// Purge moves every live pallet whose status is in statuses and whose last
// status change is older than olderThan into the archive, deleting its
// history. A pallet number archived again replaces its earlier archive row.
func (m *Manager) Purge(ctx context.Context, statuses mapset.Set[pallet.Status], olderThan time.Duration) (result *PurgeResult, err error) {
	cutoff := m.now().Add(-olderThan)
	ctx, span := m.tracer.Start(ctx, "archive.purge", trace.WithAttributes(
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	))
	defer func() { endSpan(span, err) }()

	if statuses == nil || statuses.Cardinality() == 0 {
		return nil, &pallet.ValidationError{Field: "statuts", Message: "at least one status is required"}
	}
	if olderThan < 0 {
		return nil, &pallet.ValidationError{Field: "olderThan", Message: "age must not be negative"}
	}
	selected := statuses.ToSlice()
	slices.Sort(selected)

	result = &PurgeResult{Cutoff: cutoff}
	err = m.inTx(ctx, func(repo *pallet.Repository) error {
		rows, err := repo.SelectForPurge(ctx, selected, cutoff)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		archived := make([]pallet.ArchivedPallet, len(rows))
		numbers := make([]string, len(rows))
		for i := range rows {
			archived[i] = rows[i].Archive()
			numbers[i] = rows[i].Number
			if _, err := repo.DeleteArchive(ctx, rows[i].Number); err != nil {
				return err
			}
		}
		if err := repo.InsertArchive(ctx, archived); err != nil {
			return err
		}
		if _, err := repo.DeleteWithHistory(ctx, numbers); err != nil {
			return err
		}
		codes := make([]string, len(rows))
		for i := range rows {
			codes[i] = rows[i].LocationCode()
		}
		if err := m.alloc.Lock(ctx, repo, codes...); err != nil {
			return err
		}
		for i := range rows {
			if err := m.alloc.Release(ctx, repo, rows[i].LocationCode(), rows[i].Number); err != nil {
				return err
			}
		}
		result.Numbers = numbers
		result.Archived = len(numbers)
		return nil
	})
	if err != nil {
		m.logger.Error("purge failed", "statuses", selected, "cutoff", cutoff, "error", err)
		return nil, err
	}
	m.metrics.ArchiveRows("archived", result.Archived)
	span.SetAttributes(attribute.Int("archived", result.Archived))
	m.logger.Info("purge completed", "archived", result.Archived, "statuses", selected, "cutoff", cutoff)
	return result, nil
}

// RestoreOutcome reports what happened to one restore record. Reason is set
// only on skips. LocationCleared marks a restored pallet whose archived
// location was dropped.
type RestoreOutcome struct {
	Number          string `json:"numPalette"`
	Restored        bool   `json:"restored"`
	Reason          string `json:"reason,omitempty"`
	LocationCleared bool   `json:"locationCleared,omitempty"`
}

// Restore skip reasons.
const (
	RestoreAlreadyLive   = "already_live"
	RestoreNotArchived   = "not_archived"
	RestoreMissingNumber = "missing_number"
)

// RestoreResult is the outcome of a restore call. Restored excludes skips.
type RestoreResult struct {
	Restored int              `json:"restored"`
	Outcomes []RestoreOutcome `json:"outcomes"`
}

// Restore puts archive-shaped records back into the live table and removes
// their archive rows. Numbers that are already live are skipped, so calling
// Restore twice with the same records restores them once. A restored pallet
// in the warehouse re-acquires its location; when another pallet holds it,
// the pallet is restored without a location. A pallet in a release status
// never comes back with a location.
func (m *Manager) Restore(ctx context.Context, records []pallet.ArchivedPallet) (result *RestoreResult, err error) {
	ctx, span := m.tracer.Start(ctx, "archive.restore", trace.WithAttributes(
		attribute.Int("records", len(records)),
	))
	defer func() { endSpan(span, err) }()

	err = m.inTx(ctx, func(repo *pallet.Repository) error {
		result = &RestoreResult{Outcomes: make([]RestoreOutcome, 0, len(records))}
		for _, rec := range records {
			out, err := m.restoreOne(ctx, repo, rec)
			if err != nil {
				return err
			}
			if out.Restored {
				result.Restored++
			} else {
				m.logger.Warn("restore skipped", "pallet", out.Number, "reason", out.Reason)
			}
			result.Outcomes = append(result.Outcomes, out)
		}
		return nil
	})
	if err != nil {
		m.logger.Error("restore failed", "records", len(records), "error", err)
		return nil, err
	}
	m.metrics.ArchiveRows("restored", result.Restored)
	span.SetAttributes(attribute.Int("restored", result.Restored))
	m.logger.Info("restore completed", "restored", result.Restored, "records", len(records))
	return result, nil
}

func (m *Manager) restoreOne(ctx context.Context, repo *pallet.Repository, rec pallet.ArchivedPallet) (RestoreOutcome, error) {
	rec.Number = strings.TrimSpace(rec.Number)
	out := RestoreOutcome{Number: rec.Number}
	if rec.Number == "" {
		out.Reason = RestoreMissingNumber
		return out, nil
	}
	live, err := repo.Exists(ctx, rec.Number)
	if err != nil {
		return out, err
	}
	if live {
		out.Reason = RestoreAlreadyLive
		return out, nil
	}

	p := rec.Live()
	code := p.LocationCode()
	if code != "" && p.Status.Releases() {
		m.logger.Warn("released pallet archived with a location, cleared",
			"pallet", p.Number, "status", p.Status, "location", code)
		p.Location = nil
		code = ""
		out.LocationCleared = true
	}
	holdsLocation := code != ""
	if holdsLocation {
		if err := m.alloc.Lock(ctx, repo, code); err != nil {
			return out, err
		}
		holder, err := repo.Holder(ctx, code, p.Number)
		if err != nil {
			return out, err
		}
		if holder != nil {
			m.logger.Warn("restored pallet location taken, cleared",
				"pallet", p.Number, "location", code, "holder", holder.Number)
			p.Location = nil
			holdsLocation = false
			out.LocationCleared = true
		}
	}

	if err := repo.Create(ctx, &p); err != nil {
		return out, err
	}
	if _, err := repo.DeleteArchive(ctx, p.Number); err != nil {
		return out, err
	}
	if holdsLocation {
		if err := m.alloc.Acquire(ctx, repo, code); err != nil {
			return out, err
		}
	}
	out.Restored = true
	return out, nil
}

// RestoreNumbers restores the archive rows with the given pallet numbers.
// Numbers without an archive row are reported as not_archived.
func (m *Manager) RestoreNumbers(ctx context.Context, numbers []string) (*RestoreResult, error) {
	records := make([]pallet.ArchivedPallet, 0, len(numbers))
	var missing []string
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		rec, err := m.repo.GetArchive(ctx, n)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			missing = append(missing, n)
			continue
		}
		records = append(records, *rec)
	}

	result, err := m.Restore(ctx, records)
	if err != nil {
		return nil, err
	}
	for _, n := range missing {
		result.Outcomes = append(result.Outcomes, RestoreOutcome{Number: n, Reason: RestoreNotArchived})
	}
	return result, nil
}

// ListArchive returns archive rows for the restore picker.
func (m *Manager) ListArchive(ctx context.Context, f pallet.ArchiveFilter) ([]pallet.ArchivedPallet, error) {
	return m.repo.ListArchive(ctx, f)
}

// Expired is a set of archive rows selected for deletion, with the cutoff
// they were selected against.
type Expired struct {
	Cutoff time.Time               `json:"cutoff"`
	Rows   []pallet.ArchivedPallet `json:"rows"`
}

// Numbers returns the pallet numbers of the expired rows.
func (e *Expired) Numbers() []string {
	out := make([]string, len(e.Rows))
	for i := range e.Rows {
		out[i] = e.Rows[i].Number
	}
	return out
}

// ExpiredArchive selects archive rows whose last movement is older than
// olderThan. Nothing is deleted.
func (m *Manager) ExpiredArchive(ctx context.Context, olderThan time.Duration) (*Expired, error) {
	cutoff := m.now().Add(-olderThan)
	rows, err := m.repo.ArchiveOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return &Expired{Cutoff: cutoff, Rows: rows}, nil
}

// DeleteArchived deletes the listed archive rows that are still older than
// cutoff and returns how many were deleted.
func (m *Manager) DeleteArchived(ctx context.Context, numbers []string, cutoff time.Time) (deleted int64, err error) {
	ctx, span := m.tracer.Start(ctx, "archive.delete_expired", trace.WithAttributes(
		attribute.Int("rows", len(numbers)),
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	))
	defer func() { endSpan(span, err) }()

	err = m.inTx(ctx, func(repo *pallet.Repository) error {
		n, err := repo.DeleteArchiveOlderThan(ctx, numbers, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		m.logger.Error("archive expiry failed", "rows", len(numbers), "error", err)
		return 0, err
	}
	m.metrics.ArchiveRows("deleted", int(deleted))
	m.logger.Info("archive rows deleted", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

// ConfirmFunc receives the rows about to be deleted. Returning an error
// cancels the deletion.
type ConfirmFunc func(ctx context.Context, rows []pallet.ArchivedPallet) error

// PurgeArchive selects expired archive rows, hands them to confirm and
// deletes exactly those rows once confirm returns nil.
func (m *Manager) PurgeArchive(ctx context.Context, olderThan time.Duration, confirm ConfirmFunc) (*Expired, int64, error) {
	expired, err := m.ExpiredArchive(ctx, olderThan)
	if err != nil {
		return nil, 0, err
	}
	if len(expired.Rows) == 0 {
		return expired, 0, nil
	}
	if confirm != nil {
		if err := confirm(ctx, expired.Rows); err != nil {
			m.logger.Warn("archive expiry not confirmed", "rows", len(expired.Rows), "error", err)
			return expired, 0, err
		}
	}
	deleted, err := m.DeleteArchived(ctx, expired.Numbers(), expired.Cutoff)
	if err != nil {
		return expired, 0, err
	}
	return expired, deleted, nil
}
