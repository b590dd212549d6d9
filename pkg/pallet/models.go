package pallet

import (
	"time"

	"gorm.io/gorm/clause"
)

// Pallet is a live pallet record (InfoPalette).
type Pallet struct {
	Number          string     `gorm:"primaryKey;column:NumPalette;type:varchar(32)" json:"numPalette"`
	Client          string     `gorm:"column:NomClient;type:varchar(255);index" json:"nomClient"`
	Article         string     `gorm:"column:Article;type:varchar(255)" json:"article"`
	Quantity        *int       `gorm:"column:Quantite" json:"quantite"`
	Location        *string    `gorm:"column:Emplacement;type:varchar(64);index" json:"emplacement"`
	LastMovementAt  *time.Time `gorm:"column:Date_Dernier_MVT" json:"dateDernierMvt"`
	Status          Status     `gorm:"column:Statut;type:varchar(32);index" json:"statut"`
	StatusChangedAt *time.Time `gorm:"column:Date_Modif_Statut" json:"dateModifStatut"`
	StatusChangedBy string     `gorm:"column:Utilisateur_Modif_Statut;type:varchar(255)" json:"utilisateurModifStatut"`

	OperationNumber string     `gorm:"column:NumOperation;type:varchar(64)" json:"numOperation,omitempty"`
	Operation       string     `gorm:"column:Operation;type:varchar(255)" json:"operation,omitempty"`
	ClientAction    string     `gorm:"column:ActionClient;type:varchar(255)" json:"actionClient,omitempty"`
	Employee        string     `gorm:"column:Employe;type:varchar(255)" json:"employe,omitempty"`
	RegisteredAt    *time.Time `gorm:"column:Date_Entree_Reliquat" json:"dateEntreeReliquat,omitempty"`
}

func (Pallet) TableName() string { return "InfoPalette" }

// LocationCode returns the location or "" when the pallet has none.
func (p *Pallet) LocationCode() string {
	if p.Location == nil {
		return ""
	}
	return *p.Location
}

// Summary is the row returned by status listings.
type Summary struct {
	Number   string  `json:"numPalette"`
	Article  string  `json:"article"`
	Client   string  `json:"nomClient"`
	Quantity *int    `json:"quantite"`
	Location *string `json:"emplacement"`
}

// Summary projects the pallet onto a listing row.
func (p *Pallet) Summary() Summary {
	return Summary{
		Number:   p.Number,
		Article:  p.Article,
		Client:   p.Client,
		Quantity: p.Quantity,
		Location: p.Location,
	}
}

// StatusEvent is an append-only status history row (STT_Palette).
type StatusEvent struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Number    string    `gorm:"column:NumPalette;type:varchar(32);index" json:"numPalette"`
	Status    Status    `gorm:"column:Statut;type:varchar(32)" json:"statut"`
	ChangedAt time.Time `gorm:"column:Date_Modif_Statut" json:"dateModifStatut"`
	ChangedBy string    `gorm:"column:Utilisateur_Modif_Statut;type:varchar(255)" json:"utilisateurModifStatut"`
}

func (StatusEvent) TableName() string { return "STT_Palette" }

// MovementEvent is an append-only movement history row (MVT_Palette).
type MovementEvent struct {
	ID      string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Number  string    `gorm:"column:NumPalette;type:varchar(32);index" json:"numPalette"`
	MovedAt time.Time `gorm:"column:Date_Dernier_MVT" json:"dateDernierMvt"`
	Zone    string    `gorm:"column:Zone;type:varchar(64)" json:"zone"`
}

func (MovementEvent) TableName() string { return "MVT_Palette" }

// Location is a row of the occupancy ledger (EmplacementEntrepot).
type Location struct {
	Code  string        `gorm:"primaryKey;column:Emplacement;type:varchar(64)" json:"emplacement"`
	State LocationState `gorm:"column:Etat;type:varchar(16)" json:"etat"`
}

func (Location) TableName() string { return "EmplacementEntrepot" }

// ArchivedPallet is a pallet moved out of the live set (SPR_Palette). It has
// the same columns as Pallet.
type ArchivedPallet struct {
	Number          string     `gorm:"primaryKey;column:NumPalette;type:varchar(32)" json:"numPalette"`
	Client          string     `gorm:"column:NomClient;type:varchar(255)" json:"nomClient"`
	Article         string     `gorm:"column:Article;type:varchar(255)" json:"article"`
	Quantity        *int       `gorm:"column:Quantite" json:"quantite"`
	Location        *string    `gorm:"column:Emplacement;type:varchar(64)" json:"emplacement"`
	LastMovementAt  *time.Time `gorm:"column:Date_Dernier_MVT;index" json:"dateDernierMvt"`
	Status          Status     `gorm:"column:Statut;type:varchar(32)" json:"statut"`
	StatusChangedAt *time.Time `gorm:"column:Date_Modif_Statut" json:"dateModifStatut"`
	StatusChangedBy string     `gorm:"column:Utilisateur_Modif_Statut;type:varchar(255)" json:"utilisateurModifStatut"`

	OperationNumber string     `gorm:"column:NumOperation;type:varchar(64)" json:"numOperation,omitempty"`
	Operation       string     `gorm:"column:Operation;type:varchar(255)" json:"operation,omitempty"`
	ClientAction    string     `gorm:"column:ActionClient;type:varchar(255)" json:"actionClient,omitempty"`
	Employee        string     `gorm:"column:Employe;type:varchar(255)" json:"employe,omitempty"`
	RegisteredAt    *time.Time `gorm:"column:Date_Entree_Reliquat" json:"dateEntreeReliquat,omitempty"`
}

func (ArchivedPallet) TableName() string { return "SPR_Palette" }

// Archive copies every column of a live pallet.
func (p *Pallet) Archive() ArchivedPallet {
	return ArchivedPallet(*p)
}

// Live converts an archive row back to a live pallet.
func (a *ArchivedPallet) Live() Pallet {
	return Pallet(*a)
}

// OperatorAccount is a login row (Users).
type OperatorAccount struct {
	Login        string `gorm:"primaryKey;column:Login;type:varchar(64)"`
	PasswordHash string `gorm:"column:Password;type:varchar(255)"`
	Role         Role   `gorm:"column:Role;type:varchar(32)"`
}

func (OperatorAccount) TableName() string { return "Users" }

// Models lists every table managed by this package.
func Models() []any {
	return []any{
		&Pallet{},
		&StatusEvent{},
		&MovementEvent{},
		&Location{},
		&ArchivedPallet{},
		&OperatorAccount{},
	}
}

// Column references, quoted by gorm for every dialect.
var (
	colNumber          = clause.Column{Name: "NumPalette"}
	colClient          = clause.Column{Name: "NomClient"}
	colArticle         = clause.Column{Name: "Article"}
	colLocation        = clause.Column{Name: "Emplacement"}
	colStatus          = clause.Column{Name: "Statut"}
	colStatusChangedAt = clause.Column{Name: "Date_Modif_Statut"}
	colLastMovementAt  = clause.Column{Name: "Date_Dernier_MVT"}
	colState           = clause.Column{Name: "Etat"}
	colLogin           = clause.Column{Name: "Login"}
)
