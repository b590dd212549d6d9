// Package lifecycle is the pallet lifecycle engine: it decides which status
// transitions are legal, applies them together with their history rows and
// keeps the location ledger consistent, one transaction per operation.
package lifecycle

import (
	"fmt"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Operation names a kind of transition request.
type Operation string

const (
	OpIntake         Operation = "intake"
	OpRelocate       Operation = "relocate"
	OpInventory      Operation = "inventory"
	OpDestruction    Operation = "destruction"
	OpReturn         Operation = "return"
	OpProductionExit Operation = "production"
	OpDirect         Operation = "direct"
	OpRegister       Operation = "register"
)

// TransitionRule defines what one operation requires and produces.
type TransitionRule struct {
	Operation Operation
	From      pallet.Status // Required current status. Empty accepts any.
	To        pallet.Status // Resulting status. Empty means the request chooses.
	Zone      string        // Movement zone recorded. Empty records no movement.
}

// DefaultRules are the fixed warehouse transitions.
var DefaultRules = []TransitionRule{
	{Operation: OpIntake, To: pallet.StatusInStock, Zone: pallet.ZoneWarehouse},
	{Operation: OpInventory, From: pallet.StatusToInventory},
	{Operation: OpDestruction, From: pallet.StatusToDestroy, To: pallet.StatusDestroyed, Zone: pallet.ZoneDestroyed},
	{Operation: OpReturn, From: pallet.StatusToReturn, To: pallet.StatusReturned, Zone: pallet.ZoneReturned},
	{Operation: OpProductionExit, From: pallet.StatusInStock, To: pallet.StatusInProduction, Zone: pallet.ZoneWorkshop},
}

// Machine validates pallet transitions against a rule set.
type Machine struct {
	rules map[Operation]TransitionRule
	order []Operation
}

// NewMachine creates a machine with the default rules.
func NewMachine() *Machine {
	return NewMachineWithRules(DefaultRules)
}

// NewMachineWithRules creates a machine from an explicit rule set. A later
// rule for the same operation replaces an earlier one.
func NewMachineWithRules(rules []TransitionRule) *Machine {
	m := &Machine{rules: make(map[Operation]TransitionRule, len(rules))}
	for _, r := range rules {
		if _, seen := m.rules[r.Operation]; !seen {
			m.order = append(m.order, r.Operation)
		}
		m.rules[r.Operation] = r
	}
	return m
}

// Rule returns the rule for an operation.
func (m *Machine) Rule(op Operation) (TransitionRule, bool) {
	r, ok := m.rules[op]
	return r, ok
}

// ValidateTransition checks that the pallet's current status permits op.
func (m *Machine) ValidateTransition(op Operation, p *pallet.Pallet) error {
	rule, ok := m.rules[op]
	if !ok {
		return &pallet.TransitionError{
			Code:    pallet.CodeInvalidTransition,
			Pallet:  p.Number,
			From:    p.Status,
			Message: fmt.Sprintf("no transition defined for operation %s", op),
		}
	}
	if rule.From != "" && p.Status != rule.From {
		return &pallet.TransitionError{
			Code:    pallet.CodeInvalidTransition,
			Pallet:  p.Number,
			From:    p.Status,
			To:      rule.To,
			Message: fmt.Sprintf("pallet %s is %q, %s requires %q", p.Number, p.Status, op, rule.From),
		}
	}
	return nil
}

// ValidateRelocation refuses to move a pallet that has left the warehouse.
func (m *Machine) ValidateRelocation(p *pallet.Pallet) error {
	if p.Status.Releases() {
		return &pallet.TransitionError{
			Code:    pallet.CodeTransitionDenied,
			Pallet:  p.Number,
			From:    p.Status,
			To:      p.Status,
			Message: fmt.Sprintf("pallet %s is %q and cannot be relocated", p.Number, p.Status),
		}
	}
	return nil
}

// InventoryTarget resolves the status requested by an inventory
// validation. An empty request means back in stock.
func (m *Machine) InventoryTarget(requested string) (pallet.Status, error) {
	if requested == "" {
		return pallet.StatusInStock, nil
	}
	s, err := pallet.ParseStatus(requested)
	if err != nil {
		return "", err
	}
	if s == pallet.StatusToInventory {
		return "", &pallet.ValidationError{Field: "statut", Message: "inventory validation must leave " + string(pallet.StatusToInventory)}
	}
	return s, nil
}

// AllowedOperations returns the operations whose precondition accepts the
// given status, in rule order.
func (m *Machine) AllowedOperations(from pallet.Status) []Operation {
	var allowed []Operation
	for _, op := range m.order {
		if rule := m.rules[op]; rule.From == "" || rule.From == from {
			allowed = append(allowed, op)
		}
	}
	return allowed
}
