package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/solaius/pallet-registry/pkg/metrics"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Config wires an Engine. Zero values select defaults.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Machine *Machine
	Clock   func() time.Time
}

// Engine applies pallet operations. Each public operation runs in exactly
// one database transaction; the engine keeps no other state, so one Engine
// is shared by all request handlers.
//
// An operation locks the pallet row and then every location row it reads
// or claims, in code order, before checking who holds a location. Two
// concurrent claims of one location therefore serialise and the loser sees
// the winner's pallet. SQLite takes no row locks and relies on its single
// writer instead. Updates to the same pallet remain last-writer-wins across
// requests: no version is compared, so a client acting on a pallet it read
// earlier overwrites whatever was committed in between, as long as the
// transition is still allowed from the current status.
type Engine struct {
	db      *gorm.DB
	repo    *pallet.Repository
	machine *Machine
	alloc   *Allocator
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	tracer  trace.Tracer
}

// NewEngine creates an engine over db.
func NewEngine(db *gorm.DB, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Machine == nil {
		cfg.Machine = NewMachine()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		db:      db,
		repo:    pallet.NewRepository(db),
		machine: cfg.Machine,
		alloc:   NewAllocator(cfg.Logger),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		tracer:  otel.Tracer("pallet-registry/lifecycle"),
	}
}

// Repository returns the non-transactional repository for read queries.
func (e *Engine) Repository() *pallet.Repository {
	return e.repo
}

// Machine returns the transition rules in use.
func (e *Engine) Machine() *Machine {
	return e.machine
}

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// inTx runs fn inside one transaction with a transaction-bound repository.
func (e *Engine) inTx(ctx context.Context, fn func(repo *pallet.Repository) error) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(e.repo.WithTx(tx))
	})
	return pallet.AsStoreError("transaction", err)
}

func (e *Engine) startSpan(ctx context.Context, name string, op pallet.Operator, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("operator", op.Name))
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records the result of a single-pallet operation on the span and
// the transition counter.
func (e *Engine) finish(span trace.Span, op Operation, err error) {
	result := resultLabel(err)
	e.metrics.Transition(string(op), result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	span.End()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pallet.ErrNotFound):
		return "not_found"
	case errors.Is(err, pallet.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, pallet.ErrValidation):
		return "invalid"
	}
	return "error"
}

func requireOperator(op pallet.Operator) error {
	if strings.TrimSpace(op.Name) == "" {
		return &pallet.ValidationError{Field: "operator", Message: "operator is required"}
	}
	return nil
}

func nullable(code string) *string {
	if code == "" {
		return nil
	}
	return &code
}

// Intake puts a registered pallet in stock at location. A previous location
// is released; the new one is acquired and created if unknown.
func (e *Engine) Intake(ctx context.Context, op pallet.Operator, number, location, reason string) (err error) {
	number, location = strings.TrimSpace(number), normalizeLocation(location)
	ctx, span := e.startSpan(ctx, "lifecycle.intake", op,
		attribute.String("pallet", number),
		attribute.String("location", location),
		attribute.String("reason", reason),
	)
	defer func() { e.finish(span, OpIntake, err) }()

	if err := requireOperator(op); err != nil {
		return err
	}
	if location == "" {
		return &pallet.ValidationError{Field: "emplacement", Message: "location is required"}
	}
	rule, _ := e.machine.Rule(OpIntake)

	err = e.inTx(ctx, func(repo *pallet.Repository) error {
		p, err := repo.GetForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if p == nil {
			return pallet.PalletNotFound(number)
		}
		if err := e.machine.ValidateTransition(OpIntake, p); err != nil {
			return err
		}
		if err := e.alloc.Lock(ctx, repo, p.LocationCode(), location); err != nil {
			return err
		}
		if err := e.alloc.CheckAvailable(ctx, repo, location, number); err != nil {
			return err
		}

		now := e.now()
		if err := repo.Update(ctx, number, map[string]any{
			"Statut":                   rule.To,
			"Emplacement":              location,
			"Date_Dernier_MVT":         now,
			"Date_Modif_Statut":        now,
			"Utilisateur_Modif_Statut": op.Name,
		}); err != nil {
			return err
		}
		if err := repo.AppendStatusEvent(ctx, &pallet.StatusEvent{
			Number: number, Status: rule.To, ChangedAt: now, ChangedBy: op.Name,
		}); err != nil {
			return err
		}
		if err := repo.AppendMovementEvent(ctx, &pallet.MovementEvent{
			Number: number, MovedAt: now, Zone: rule.Zone,
		}); err != nil {
			return err
		}
		return e.alloc.Move(ctx, repo, number, p.LocationCode(), location)
	})
	if err != nil {
		e.logger.Warn("intake failed", "pallet", number, "location", location, "operator", op.Name, "error", err)
		return err
	}
	e.logger.Info("pallet taken into stock",
		"pallet", number, "location", location, "operator", op.Name, "reason", reason)
	return nil
}

// UpdateLocation moves a pallet without changing its status. The previous
// location is released and the new one acquired; the movement zone is the
// new location code.
func (e *Engine) UpdateLocation(ctx context.Context, op pallet.Operator, number, location string) (err error) {
	number, location = strings.TrimSpace(number), normalizeLocation(location)
	ctx, span := e.startSpan(ctx, "lifecycle.update_location", op,
		attribute.String("pallet", number),
		attribute.String("location", location),
	)
	defer func() { e.finish(span, OpRelocate, err) }()

	if err := requireOperator(op); err != nil {
		return err
	}
	if location == "" {
		return &pallet.ValidationError{Field: "emplacement", Message: "location is required"}
	}

	var from string
	err = e.inTx(ctx, func(repo *pallet.Repository) error {
		p, err := repo.GetForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if p == nil {
			return pallet.PalletNotFound(number)
		}
		if err := e.machine.ValidateRelocation(p); err != nil {
			return err
		}
		if err := e.alloc.Lock(ctx, repo, p.LocationCode(), location); err != nil {
			return err
		}
		if err := e.alloc.CheckAvailable(ctx, repo, location, number); err != nil {
			return err
		}

		from = p.LocationCode()
		now := e.now()
		if err := repo.Update(ctx, number, map[string]any{
			"Emplacement":      location,
			"Date_Dernier_MVT": now,
		}); err != nil {
			return err
		}
		if err := repo.AppendMovementEvent(ctx, &pallet.MovementEvent{
			Number: number, MovedAt: now, Zone: location,
		}); err != nil {
			return err
		}
		return e.alloc.Move(ctx, repo, number, from, location)
	})
	if err != nil {
		e.logger.Warn("relocation failed", "pallet", number, "location", location, "operator", op.Name, "error", err)
		return err
	}
	e.logger.Info("pallet relocated", "pallet", number, "from", from, "to", location, "operator", op.Name)
	return nil
}

// ChangeStatusDirect sets a status unconditionally. It is reserved for
// administrators. Entering a release status frees and clears the location;
// entering InStock re-acquires the current location.
func (e *Engine) ChangeStatusDirect(ctx context.Context, op pallet.Operator, number string, status pallet.Status) (err error) {
	number = strings.TrimSpace(number)
	ctx, span := e.startSpan(ctx, "lifecycle.change_status", op,
		attribute.String("pallet", number),
		attribute.String("status", string(status)),
	)
	defer func() { e.finish(span, OpDirect, err) }()

	if err := requireOperator(op); err != nil {
		return err
	}
	if !op.IsAdmin() {
		return &pallet.TransitionError{
			Code:    pallet.CodeTransitionDenied,
			Pallet:  number,
			To:      status,
			Message: "direct status changes require the admin role",
		}
	}
	if !status.Valid() {
		return &pallet.ValidationError{Field: "statut", Message: "unknown status " + string(status)}
	}

	var from pallet.Status
	err = e.inTx(ctx, func(repo *pallet.Repository) error {
		p, err := repo.GetForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if p == nil {
			return pallet.PalletNotFound(number)
		}
		from = p.Status
		loc := p.LocationCode()
		if err := e.alloc.Lock(ctx, repo, loc); err != nil {
			return err
		}
		now := e.now()
		fields := map[string]any{
			"Statut":                   status,
			"Date_Modif_Statut":        now,
			"Utilisateur_Modif_Statut": op.Name,
		}

		switch {
		case status.Releases():
			if loc != "" {
				fields["Emplacement"] = nil
			}
		case status == pallet.StatusInStock && loc != "":
			if err := e.alloc.CheckAvailable(ctx, repo, loc, number); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, number, fields); err != nil {
			return err
		}
		if err := repo.AppendStatusEvent(ctx, &pallet.StatusEvent{
			Number: number, Status: status, ChangedAt: now, ChangedBy: op.Name,
		}); err != nil {
			return err
		}

		switch {
		case status.Releases():
			return e.alloc.Release(ctx, repo, loc, number)
		case status == pallet.StatusInStock && loc != "":
			return e.alloc.Acquire(ctx, repo, loc)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("direct status change failed", "pallet", number, "status", status, "operator", op.Name, "error", err)
		return err
	}
	e.logger.Info("pallet status set", "pallet", number, "from", from, "to", status, "operator", op.Name)
	return nil
}
