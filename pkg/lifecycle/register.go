package lifecycle

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Registration describes a pallet recorded at the registration desk. It has
// no status and no location until intake.
type Registration struct {
	Number          string `json:"numPalette,omitempty"`
	Client          string `json:"nomClient"`
	Article         string `json:"article"`
	Quantity        *int   `json:"quantite,omitempty"`
	OperationNumber string `json:"numOperation,omitempty"`
	Operation       string `json:"operation,omitempty"`
	ClientAction    string `json:"actionClient,omitempty"`
	Employee        string `json:"employe,omitempty"`
}

// Register inserts a new pallet. An empty number is replaced by the next
// free one.
func (e *Engine) Register(ctx context.Context, op pallet.Operator, reg Registration) (p *pallet.Pallet, err error) {
	ctx, span := e.startSpan(ctx, "lifecycle.register", op, attribute.String("pallet", reg.Number))
	defer func() { e.finish(span, OpRegister, err) }()

	if err := requireOperator(op); err != nil {
		return nil, err
	}
	reg.Client, reg.Article = strings.TrimSpace(reg.Client), strings.TrimSpace(reg.Article)
	if reg.Client == "" {
		return nil, &pallet.ValidationError{Field: "nomClient", Message: "client is required"}
	}
	if reg.Article == "" {
		return nil, &pallet.ValidationError{Field: "article", Message: "article is required"}
	}
	if reg.Quantity != nil && *reg.Quantity < 0 {
		return nil, &pallet.ValidationError{Field: "quantite", Message: "quantity must not be negative"}
	}

	err = e.inTx(ctx, func(repo *pallet.Repository) error {
		number := strings.TrimSpace(reg.Number)
		if number == "" {
			next, err := repo.NextNumber(ctx)
			if err != nil {
				return err
			}
			number = next
		}
		now := e.now()
		p = &pallet.Pallet{
			Number:          number,
			Client:          reg.Client,
			Article:         reg.Article,
			Quantity:        reg.Quantity,
			OperationNumber: reg.OperationNumber,
			Operation:       reg.Operation,
			ClientAction:    reg.ClientAction,
			Employee:        reg.Employee,
			RegisteredAt:    &now,
		}
		return repo.Create(ctx, p)
	})
	if err != nil {
		e.logger.Warn("registration failed", "pallet", reg.Number, "operator", op.Name, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("pallet", p.Number))
	e.logger.Info("pallet registered", "pallet", p.Number, "client", p.Client, "article", p.Article, "operator", op.Name)
	return p, nil
}
