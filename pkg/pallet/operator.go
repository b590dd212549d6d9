package pallet

// Role is the privilege level of an operator.
type Role string

const (
	RoleUser  Role = "utilisateur"
	RoleAdmin Role = "admin"
)

// Operator identifies the person acting on pallets. It is recorded in
// Utilisateur_Modif_Statut on every status change.
type Operator struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the operator may use administrative overrides.
func (o Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}

// SystemOperator is used by background workers.
var SystemOperator = Operator{Name: "system", Role: RoleAdmin}
