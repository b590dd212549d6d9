package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// ValidateBatch applies one validation operation to every item, in order,
// inside a single transaction. Items that cannot be applied are skipped and
// reported; only a store failure aborts the batch, and then nothing is
// written.
func (e *Engine) ValidateBatch(ctx context.Context, op pallet.Operator, operation Operation, items []Item) (*BatchResult, error) {
	ctx, span := e.startSpan(ctx, "lifecycle.validate_batch", op,
		attribute.String("operation", string(operation)),
		attribute.Int("items", len(items)),
	)
	defer span.End()

	if err := requireOperator(op); err != nil {
		return nil, err
	}
	rule, ok := e.machine.Rule(operation)
	if !ok || operation == OpIntake {
		return nil, &pallet.ValidationError{Field: "operation", Message: fmt.Sprintf("%s is not a validation", operation)}
	}

	var result *BatchResult
	err := e.inTx(ctx, func(repo *pallet.Repository) error {
		result = &BatchResult{Outcomes: make([]ItemOutcome, 0, len(items))}
		for i, item := range items {
			out, err := e.applyItem(ctx, repo, op, rule, item)
			if err != nil {
				return err
			}
			out.Index = i
			out.Number = strings.TrimSpace(item.Number)
			if out.Applied() {
				result.Applied++
			} else {
				result.Skipped++
				e.logger.Warn("batch item skipped",
					"operation", operation, "index", i, "pallet", out.Number,
					"reason", out.Reason, "detail", out.Detail, "operator", op.Name)
			}
			result.Outcomes = append(result.Outcomes, out)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch rolled back")
		e.logger.Error("batch validation rolled back", "operation", operation, "items", len(items), "operator", op.Name, "error", err)
		return nil, err
	}

	for _, out := range result.Outcomes {
		label := string(out.Outcome)
		if !out.Applied() {
			label = string(out.Reason)
		}
		e.metrics.BatchItem(string(operation), label)
	}
	span.SetAttributes(attribute.Int("applied", result.Applied), attribute.Int("skipped", result.Skipped))
	e.logger.Info("batch validated",
		"operation", operation, "applied", result.Applied, "skipped", result.Skipped, "operator", op.Name)
	return result, nil
}

// applyItem validates and writes one item. Business failures come back as a
// skipped outcome; the error return is reserved for store failures.
func (e *Engine) applyItem(ctx context.Context, repo *pallet.Repository, op pallet.Operator, rule TransitionRule, item Item) (ItemOutcome, error) {
	number := strings.TrimSpace(item.Number)
	if number == "" {
		return skipped(SkipNotFound, "pallet number is empty"), nil
	}

	p, err := repo.GetForUpdate(ctx, number)
	if err != nil {
		return ItemOutcome{}, err
	}
	if p == nil {
		return skipped(SkipNotFound, fmt.Sprintf("pallet %s not found", number)), nil
	}

	quantity, ok := item.quantity()
	if !ok {
		return skipped(SkipInvalidQuantity, fmt.Sprintf("quantity %v is not a non-negative integer", *item.Quantity)), nil
	}

	if err := e.machine.ValidateTransition(rule.Operation, p); err != nil {
		return skipped(SkipInvalidTransition, err.Error()), nil
	}

	target := rule.To
	from := p.LocationCode()
	to := ""
	if rule.Operation == OpInventory {
		target, err = e.machine.InventoryTarget(item.Status)
		if err != nil {
			return skipped(SkipInvalidStatus, err.Error()), nil
		}
		to = from
		if loc := normalizeLocation(item.Location); loc != "" {
			to = loc
		}
		if target.Releases() {
			to = ""
		}
	}
	if err := e.alloc.Lock(ctx, repo, from, to); err != nil {
		return ItemOutcome{}, err
	}
	if to != "" && to != from {
		if err := e.alloc.CheckAvailable(ctx, repo, to, number); err != nil {
			if errors.Is(err, pallet.ErrValidation) {
				return skipped(SkipLocationOccupied, err.Error()), nil
			}
			return ItemOutcome{}, err
		}
	}

	now := e.now()
	fields := map[string]any{
		"Statut":                   target,
		"Date_Modif_Statut":        now,
		"Utilisateur_Modif_Statut": op.Name,
	}
	if quantity != nil && rule.Operation == OpInventory {
		fields["Quantite"] = *quantity
	}
	if to != from {
		fields["Emplacement"] = nullable(to)
	}
	// Every movement stamps the pallet, exits included. Archive expiry keys
	// on this date.
	if rule.Zone != "" {
		fields["Date_Dernier_MVT"] = now
	}
	if err := repo.Update(ctx, number, fields); err != nil {
		return ItemOutcome{}, err
	}

	if err := repo.AppendStatusEvent(ctx, &pallet.StatusEvent{
		Number: number, Status: target, ChangedAt: now, ChangedBy: op.Name,
	}); err != nil {
		return ItemOutcome{}, err
	}
	if rule.Zone != "" {
		if err := repo.AppendMovementEvent(ctx, &pallet.MovementEvent{
			Number: number, MovedAt: now, Zone: rule.Zone,
		}); err != nil {
			return ItemOutcome{}, err
		}
	}
	if err := e.alloc.Move(ctx, repo, number, from, to); err != nil {
		return ItemOutcome{}, err
	}

	return ItemOutcome{Outcome: OutcomeApplied, Status: target}, nil
}

// ValidateInventoryBatch applies inventory validation to each item.
func (e *Engine) ValidateInventoryBatch(ctx context.Context, op pallet.Operator, items []Item) (*BatchResult, error) {
	return e.ValidateBatch(ctx, op, OpInventory, items)
}

// ValidateDestructionBatch marks each ToDestroy pallet as destroyed.
func (e *Engine) ValidateDestructionBatch(ctx context.Context, op pallet.Operator, items []Item) (*BatchResult, error) {
	return e.ValidateBatch(ctx, op, OpDestruction, items)
}

// ValidateReturnBatch marks each ToReturn pallet as returned.
func (e *Engine) ValidateReturnBatch(ctx context.Context, op pallet.Operator, items []Item) (*BatchResult, error) {
	return e.ValidateBatch(ctx, op, OpReturn, items)
}

// ValidateProductionBatch sends each in-stock pallet to the workshop.
func (e *Engine) ValidateProductionBatch(ctx context.Context, op pallet.Operator, items []Item) (*BatchResult, error) {
	return e.ValidateBatch(ctx, op, OpProductionExit, items)
}

// ValidateInventory is ValidateInventoryBatch for a single item.
func (e *Engine) ValidateInventory(ctx context.Context, op pallet.Operator, item Item) (ItemOutcome, error) {
	return e.validateOne(ctx, op, OpInventory, item)
}

// ValidateDestruction is ValidateDestructionBatch for a single pallet.
func (e *Engine) ValidateDestruction(ctx context.Context, op pallet.Operator, number string) (ItemOutcome, error) {
	return e.validateOne(ctx, op, OpDestruction, Item{Number: number})
}

// ValidateReturn is ValidateReturnBatch for a single pallet.
func (e *Engine) ValidateReturn(ctx context.Context, op pallet.Operator, number string) (ItemOutcome, error) {
	return e.validateOne(ctx, op, OpReturn, Item{Number: number})
}

// ValidateProductionExit is ValidateProductionBatch for a single pallet.
func (e *Engine) ValidateProductionExit(ctx context.Context, op pallet.Operator, number string) (ItemOutcome, error) {
	return e.validateOne(ctx, op, OpProductionExit, Item{Number: number})
}

func (e *Engine) validateOne(ctx context.Context, op pallet.Operator, operation Operation, item Item) (ItemOutcome, error) {
	result, err := e.ValidateBatch(ctx, op, operation, []Item{item})
	if err != nil {
		return ItemOutcome{}, err
	}
	return result.Outcomes[0], nil
}
