// Package pallet holds the pallet domain types and the repository that owns
// every statement issued against the pallet, history, location, archive and
// operator tables.
package pallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solaius/pallet-registry/pkg/db"
)

// FirstPalletNumber is handed out when no numeric pallet number exists yet.
const FirstPalletNumber = "90000000001"

const (
	palletNumberDigits = 11
	palletNumberBase   = 90000000000
)

// Repository provides CRUD and query primitives over the pallet tables. It
// enforces no business rules.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository bound to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a Repository whose statements run inside tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// DB returns the underlying handle.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate creates or updates every table from the models. Production
// databases use the versioned migrations in pkg/db instead.
func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate pallet tables: %w", err)
	}
	return nil
}

func (r *Repository) supportsRowLocks() bool {
	return r.db.Dialector.Name() != "sqlite"
}

// Get returns the pallet with the given number, or nil if it does not exist.
func (r *Repository) Get(ctx context.Context, number string) (*Pallet, error) {
	return r.get(ctx, number, false)
}

// GetForUpdate is Get with a row lock held until the transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, number string) (*Pallet, error) {
	return r.get(ctx, number, true)
}

func (r *Repository) get(ctx context.Context, number string, lock bool) (*Pallet, error) {
	q := r.db.WithContext(ctx)
	if lock && r.supportsRowLocks() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p Pallet
	err := q.Where(clause.Eq{Column: colNumber, Value: number}).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get pallet", err)
	}
	return &p, nil
}

// Exists reports whether a live pallet with the given number exists.
func (r *Repository) Exists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Count(&count).Error
	if err != nil {
		return false, storeErr("count pallet", err)
	}
	return count > 0, nil
}

// Create inserts a new live pallet. A number already in use yields a
// ValidationError.
func (r *Repository) Create(ctx context.Context, p *Pallet) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if db.IsDuplicate(err) {
			return &ValidationError{Field: "numPalette", Message: fmt.Sprintf("pallet %s already exists", p.Number)}
		}
		return storeErr("create pallet", err)
	}
	return nil
}

// Update writes the given columns of one pallet. Keys are column names.
// Callers check existence first: MySQL reports zero affected rows when the
// values are unchanged.
func (r *Repository) Update(ctx context.Context, number string, fields map[string]any) error {
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Updates(fields).Error
	if err != nil {
		return storeErr("update pallet", err)
	}
	return nil
}

// AppendStatusEvent inserts a status history row, assigning its ID.
func (r *Repository) AppendStatusEvent(ctx context.Context, ev *StatusEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return storeErr("append status event", err)
	}
	return nil
}

// AppendMovementEvent inserts a movement history row, assigning its ID.
func (r *Repository) AppendMovementEvent(ctx context.Context, ev *MovementEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return storeErr("append movement event", err)
	}
	return nil
}

// ListByStatus returns the pallets currently in the given status, ordered by
// number.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]Summary, error) {
	var pallets []Pallet
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colStatus, Value: status}).
		Order(clause.OrderByColumn{Column: colNumber}).
		Find(&pallets).Error
	if err != nil {
		return nil, storeErr("list pallets by status", err)
	}
	out := make([]Summary, len(pallets))
	for i := range pallets {
		out[i] = pallets[i].Summary()
	}
	return out, nil
}

// SearchFilter narrows a consultation query. Text fields match as substrings;
// Status matches exactly. Expr is an optional filter expression (see
// ParseFilter).
type SearchFilter struct {
	Number   string
	Client   string
	Article  string
	Location string
	Status   Status
	Expr     string
	Limit    int
}

// Search returns live pallets matching the filter, ordered by number.
func (r *Repository) Search(ctx context.Context, f SearchFilter) ([]Pallet, error) {
	q := r.db.WithContext(ctx).Model(&Pallet{})
	if f.Number != "" {
		q = q.Where(clause.Like{Column: colNumber, Value: "%" + f.Number + "%"})
	}
	if f.Client != "" {
		q = q.Where(clause.Like{Column: colClient, Value: "%" + f.Client + "%"})
	}
	if f.Article != "" {
		q = q.Where(clause.Like{Column: colArticle, Value: "%" + f.Article + "%"})
	}
	if f.Location != "" {
		q = q.Where(clause.Like{Column: colLocation, Value: "%" + f.Location + "%"})
	}
	if f.Status != "" {
		q = q.Where(clause.Eq{Column: colStatus, Value: f.Status})
	}
	if f.Expr != "" {
		expr, err := ParseFilter(f.Expr)
		if err != nil {
			return nil, err
		}
		q = q.Where(expr)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var pallets []Pallet
	if err := q.Order(clause.OrderByColumn{Column: colNumber}).Find(&pallets).Error; err != nil {
		return nil, storeErr("search pallets", err)
	}
	return pallets, nil
}

// StatusHistory returns the status events of a pallet, newest first.
func (r *Repository) StatusHistory(ctx context.Context, number string) ([]StatusEvent, error) {
	var events []StatusEvent
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Order(clause.OrderByColumn{Column: colStatusChangedAt, Desc: true}).
		Find(&events).Error
	if err != nil {
		return nil, storeErr("list status history", err)
	}
	return events, nil
}

// MovementHistory returns the movement events of a pallet, newest first.
func (r *Repository) MovementHistory(ctx context.Context, number string) ([]MovementEvent, error) {
	var events []MovementEvent
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: colNumber, Value: number}).
		Order(clause.OrderByColumn{Column: colLastMovementAt, Desc: true}).
		Find(&events).Error
	if err != nil {
		return nil, storeErr("list movement history", err)
	}
	return events, nil
}

// CountByStatus returns the number of live pallets per status label.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Select("? AS status, COUNT(*) AS total", colStatus).
		Clauses(clause.GroupBy{Columns: []clause.Column{colStatus}}).
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("count pallets by status", err)
	}
	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// ListInactive returns pallets whose last movement is before the cutoff.
// Pallets that never moved are not reported.
func (r *Repository) ListInactive(ctx context.Context, before time.Time) ([]Pallet, error) {
	var pallets []Pallet
	err := r.db.WithContext(ctx).
		Where(clause.Lt{Column: colLastMovementAt, Value: before}).
		Order(clause.OrderByColumn{Column: colLastMovementAt}).
		Find(&pallets).Error
	if err != nil {
		return nil, storeErr("list inactive pallets", err)
	}
	return pallets, nil
}

// NextNumber returns the successor of the highest purely numeric 11-digit
// pallet number, or FirstPalletNumber when none exists.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Where("LENGTH(?) = ?", colNumber, palletNumberDigits).
		Pluck("NumPalette", &numbers).Error
	if err != nil {
		return "", storeErr("read pallet numbers", err)
	}

	var highest int64 = palletNumberBase
	for _, n := range numbers {
		if !isDigits(n) {
			continue
		}
		v, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			continue
		}
		if v > highest {
			highest = v
		}
	}
	return strconv.FormatInt(highest+1, 10), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// Clients returns the distinct non-empty client names, sorted.
func (r *Repository) Clients(ctx context.Context) ([]string, error) {
	var clients []string
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Where(clause.Neq{Column: colClient, Value: ""}).
		Distinct("NomClient").
		Pluck("NomClient", &clients).Error
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	sort.Strings(clients)
	return clients, nil
}

// Articles returns the distinct articles of clients matching the given
// substring, sorted.
func (r *Repository) Articles(ctx context.Context, client string) ([]string, error) {
	var articles []string
	err := r.db.WithContext(ctx).Model(&Pallet{}).
		Where(clause.Like{Column: colClient, Value: "%" + client + "%"}).
		Distinct("Article").
		Pluck("Article", &articles).Error
	if err != nil {
		return nil, storeErr("list articles", err)
	}
	sort.Strings(articles)
	return articles, nil
}

// SelectForPurge returns live pallets in one of the statuses whose last status
// change is before the cutoff. Rows are locked where the dialect allows.
func (r *Repository) SelectForPurge(ctx context.Context, statuses []Status, before time.Time) ([]Pallet, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]any, len(statuses))
	for i, s := range statuses {
		values[i] = s
	}
	q := r.db.WithContext(ctx)
	if r.supportsRowLocks() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var pallets []Pallet
	err := q.Where(clause.IN{Column: colStatus, Values: values}).
		Where(clause.Lt{Column: colStatusChangedAt, Value: before}).
		Order(clause.OrderByColumn{Column: colNumber}).
		Find(&pallets).Error
	if err != nil {
		return nil, storeErr("select pallets for purge", err)
	}
	return pallets, nil
}

// DeleteWithHistory removes live pallets together with their status and
// movement history. It returns the number of pallet rows deleted.
func (r *Repository) DeleteWithHistory(ctx context.Context, numbers []string) (int64, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	in := clause.IN{Column: colNumber, Values: toAny(numbers)}
	q := r.db.WithContext(ctx)

	if err := q.Where(in).Delete(&StatusEvent{}).Error; err != nil {
		return 0, storeErr("delete status history", err)
	}
	if err := q.Where(in).Delete(&MovementEvent{}).Error; err != nil {
		return 0, storeErr("delete movement history", err)
	}
	result := q.Where(in).Delete(&Pallet{})
	if result.Error != nil {
		return 0, storeErr("delete pallets", result.Error)
	}
	return result.RowsAffected, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
