// Package memory provides the in-memory transactional store that every
// durable backend wraps. It is also used directly for tests and ephemeral runs.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"equiploan/pkg/domain"

	"github.com/oklog/ulid/v2"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Tx              = (*transaction)(nil)
	_ domain.View            = view{}
)

// DefaultActor is recorded on audit entries that do not name one.
const DefaultActor = "Admin User"

// Option customises a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used for record timestamps.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// Store provides an in-memory transactional store for the equipment domain.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	engine  *domain.RulesEngine
	nowFn   func() time.Time
	entropy io.Reader
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:   newMemoryState(),
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newID is only called while s.mu is held, which the monotonic entropy source requires.
func (s *Store) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// ReplaceState implements domain.PersistentStore; the memory store has nothing to flush.
func (s *Store) ReplaceState(_ context.Context, snapshot domain.Snapshot) error {
	s.ImportState(snapshot)
	return nil
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is committed only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Tx) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.View) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// View returns a read-only view over the transactional state.
func (tx *transaction) View() domain.View { return view{state: &tx.state} }

// Now returns the timestamp shared by every record written in this transaction.
func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) stamp(base *domain.Base) {
	if base.ID == "" {
		base.ID = tx.store.newID(tx.now)
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = tx.now
	}
	base.UpdatedAt = tx.now
}

// CreateItem stores a new item.
func (tx *transaction) CreateItem(item domain.Item) (domain.Item, error) {
	tx.stamp(&item.Base)
	if _, exists := tx.state.items.get(item.ID); exists {
		return domain.Item{}, fmt.Errorf("item %q already exists", item.ID)
	}
	if _, ok := tx.state.categories.get(item.CategoryID); !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: item.CategoryID}
	}
	tx.state.items.put(item.ID, item)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: item})
	return item, nil
}

// UpdateItem mutates an item using the provided mutator function.
func (tx *transaction) UpdateItem(id string, mutator func(*domain.Item) error) (domain.Item, error) {
	current, ok := tx.state.items.get(id)
	if !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Item{}, err
	}
	if current.CategoryID != before.CategoryID {
		if _, ok := tx.state.categories.get(current.CategoryID); !ok {
			return domain.Item{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: current.CategoryID}
		}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.items.put(id, current)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteItem removes an item that carries no history and belongs to no open session.
func (tx *transaction) DeleteItem(id string) error {
	current, ok := tx.state.items.get(id)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	if n := countRows(tx.state.transactions, func(t domain.Transaction) bool { return t.ItemID == id }); n > 0 {
		return domain.ReferenceError{Entity: domain.EntityItem, ID: id, ReferencedBy: domain.EntityTransaction, Count: n}
	}
	if n := countRows(tx.state.maintenance, func(m domain.MaintenanceLog) bool { return m.ItemID == id }); n > 0 {
		return domain.ReferenceError{Entity: domain.EntityItem, ID: id, ReferencedBy: domain.EntityMaintenance, Count: n}
	}
	if n := countRows(tx.state.sessions, func(s domain.BorrowSession) bool { return !s.Status.Terminal() && s.HasItem(id) }); n > 0 {
		return domain.ReferenceError{Entity: domain.EntityItem, ID: id, ReferencedBy: domain.EntitySession, Count: n}
	}
	tx.state.items.remove(id)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateCategory stores a new category.
func (tx *transaction) CreateCategory(c domain.Category) (domain.Category, error) {
	tx.stamp(&c.Base)
	if _, exists := tx.state.categories.get(c.ID); exists {
		return domain.Category{}, fmt.Errorf("category %q already exists", c.ID)
	}
	tx.state.categories.put(c.ID, c)
	tx.recordChange(domain.Change{Entity: domain.EntityCategory, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateCategory mutates an existing category.
func (tx *transaction) UpdateCategory(id string, mutator func(*domain.Category) error) (domain.Category, error) {
	current, ok := tx.state.categories.get(id)
	if !ok {
		return domain.Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Category{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.categories.put(id, current)
	tx.recordChange(domain.Change{Entity: domain.EntityCategory, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteCategory removes a category no item references.
func (tx *transaction) DeleteCategory(id string) error {
	current, ok := tx.state.categories.get(id)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	if n := countRows(tx.state.items, func(i domain.Item) bool { return i.CategoryID == id }); n > 0 {
		return domain.ReferenceError{Entity: domain.EntityCategory, ID: id, ReferencedBy: domain.EntityItem, Count: n}
	}
	tx.state.categories.remove(id)
	tx.recordChange(domain.Change{Entity: domain.EntityCategory, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateTransaction stores a new loan transaction for an existing item.
func (tx *transaction) CreateTransaction(t domain.Transaction) (domain.Transaction, error) {
	tx.stamp(&t.Base)
	if _, exists := tx.state.transactions.get(t.ID); exists {
		return domain.Transaction{}, fmt.Errorf("transaction %q already exists", t.ID)
	}
	if _, ok := tx.state.items.get(t.ItemID); !ok {
		return domain.Transaction{}, domain.NotFoundError{Entity: domain.EntityItem, ID: t.ItemID}
	}
	t = cloneTransaction(t)
	tx.state.transactions.put(t.ID, t)
	tx.recordChange(domain.Change{Entity: domain.EntityTransaction, Action: domain.ActionCreate, After: cloneTransaction(t)})
	return cloneTransaction(t), nil
}

// UpdateTransaction mutates an existing transaction. The item reference is fixed.
func (tx *transaction) UpdateTransaction(id string, mutator func(*domain.Transaction) error) (domain.Transaction, error) {
	current, ok := tx.state.transactions.get(id)
	if !ok {
		return domain.Transaction{}, domain.NotFoundError{Entity: domain.EntityTransaction, ID: id}
	}
	before := cloneTransaction(current)
	if err := mutator(&current); err != nil {
		return domain.Transaction{}, err
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current = cloneTransaction(current)
	tx.state.transactions.put(id, current)
	tx.recordChange(domain.Change{Entity: domain.EntityTransaction, Action: domain.ActionUpdate, Before: before, After: cloneTransaction(current)})
	return cloneTransaction(current), nil
}

// CreateSession stores a new borrow session. Session codes are unique.
func (tx *transaction) CreateSession(s domain.BorrowSession) (domain.BorrowSession, error) {
	tx.stamp(&s.Base)
	if _, exists := tx.state.sessions.get(s.ID); exists {
		return domain.BorrowSession{}, fmt.Errorf("session %q already exists", s.ID)
	}
	if _, taken := tx.View().FindSessionByCode(s.SessionCode); taken {
		return domain.BorrowSession{}, fmt.Errorf("session code %q already exists", s.SessionCode)
	}
	if s.ItemIDs == nil {
		s.ItemIDs = []string{}
	}
	s = cloneSession(s)
	tx.state.sessions.put(s.ID, s)
	tx.recordChange(domain.Change{Entity: domain.EntitySession, Action: domain.ActionCreate, After: cloneSession(s)})
	return cloneSession(s), nil
}

// UpdateSession mutates an existing session. The session code is fixed.
func (tx *transaction) UpdateSession(id string, mutator func(*domain.BorrowSession) error) (domain.BorrowSession, error) {
	current, ok := tx.state.sessions.get(id)
	if !ok {
		return domain.BorrowSession{}, domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	before := cloneSession(current)
	current = cloneSession(current)
	if err := mutator(&current); err != nil {
		return domain.BorrowSession{}, err
	}
	current.ID = id
	current.SessionCode = before.SessionCode
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.sessions.put(id, current)
	tx.recordChange(domain.Change{Entity: domain.EntitySession, Action: domain.ActionUpdate, Before: before, After: cloneSession(current)})
	return cloneSession(current), nil
}

// DeleteSession removes a session record.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions.get(id)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	tx.state.sessions.remove(id)
	tx.recordChange(domain.Change{Entity: domain.EntitySession, Action: domain.ActionDelete, Before: cloneSession(current)})
	return nil
}

// CreateMaintenanceLog stores a maintenance log for an existing item.
func (tx *transaction) CreateMaintenanceLog(m domain.MaintenanceLog) (domain.MaintenanceLog, error) {
	tx.stamp(&m.Base)
	if _, exists := tx.state.maintenance.get(m.ID); exists {
		return domain.MaintenanceLog{}, fmt.Errorf("maintenance log %q already exists", m.ID)
	}
	if _, ok := tx.state.items.get(m.ItemID); !ok {
		return domain.MaintenanceLog{}, domain.NotFoundError{Entity: domain.EntityItem, ID: m.ItemID}
	}
	m = cloneMaintenance(m)
	tx.state.maintenance.put(m.ID, m)
	tx.recordChange(domain.Change{Entity: domain.EntityMaintenance, Action: domain.ActionCreate, After: cloneMaintenance(m)})
	return cloneMaintenance(m), nil
}

// UpdateMaintenanceLog mutates an existing maintenance log.
func (tx *transaction) UpdateMaintenanceLog(id string, mutator func(*domain.MaintenanceLog) error) (domain.MaintenanceLog, error) {
	current, ok := tx.state.maintenance.get(id)
	if !ok {
		return domain.MaintenanceLog{}, domain.NotFoundError{Entity: domain.EntityMaintenance, ID: id}
	}
	before := cloneMaintenance(current)
	if err := mutator(&current); err != nil {
		return domain.MaintenanceLog{}, err
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current = cloneMaintenance(current)
	tx.state.maintenance.put(id, current)
	tx.recordChange(domain.Change{Entity: domain.EntityMaintenance, Action: domain.ActionUpdate, Before: before, After: cloneMaintenance(current)})
	return cloneMaintenance(current), nil
}

// AppendAudit records an audit entry, evicting the oldest beyond capacity.
func (tx *transaction) AppendAudit(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = tx.store.newID(tx.now)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.now
	}
	if entry.AdminUser == "" {
		entry.AdminUser = DefaultActor
	}
	tx.state.appendAudit(entry)
	tx.recordChange(domain.Change{Entity: domain.EntityAuditLog, Action: domain.ActionCreate, After: entry})
	return entry
}

func countRows[T any](t table[T], match func(T) bool) int {
	n := 0
	for _, v := range t.rows {
		if match(v) {
			n++
		}
	}
	return n
}

// view exposes a read-only snapshot of a state to services and rules.
type view struct {
	state *memoryState
}

func (v view) ListItems() []domain.Item { return v.state.items.list(cloneItem) }

func (v view) FindItem(id string) (domain.Item, bool) {
	i, ok := v.state.items.get(id)
	return cloneItem(i), ok
}

func (v view) ListCategories() []domain.Category { return v.state.categories.list(cloneCategory) }

func (v view) FindCategory(id string) (domain.Category, bool) {
	c, ok := v.state.categories.get(id)
	return cloneCategory(c), ok
}

func (v view) ListTransactions() []domain.Transaction {
	return v.state.transactions.list(cloneTransaction)
}

func (v view) FindTransaction(id string) (domain.Transaction, bool) {
	t, ok := v.state.transactions.get(id)
	if !ok {
		return domain.Transaction{}, false
	}
	return cloneTransaction(t), true
}

func (v view) ListSessions() []domain.BorrowSession { return v.state.sessions.list(cloneSession) }

func (v view) FindSession(id string) (domain.BorrowSession, bool) {
	s, ok := v.state.sessions.get(id)
	if !ok {
		return domain.BorrowSession{}, false
	}
	return cloneSession(s), true
}

func (v view) FindSessionByCode(code string) (domain.BorrowSession, bool) {
	s, ok := v.state.sessions.find(func(s domain.BorrowSession) bool { return s.SessionCode == code })
	if !ok {
		return domain.BorrowSession{}, false
	}
	return cloneSession(s), true
}

func (v view) ListMaintenanceLogs() []domain.MaintenanceLog {
	return v.state.maintenance.list(cloneMaintenance)
}

func (v view) FindMaintenanceLog(id string) (domain.MaintenanceLog, bool) {
	m, ok := v.state.maintenance.get(id)
	if !ok {
		return domain.MaintenanceLog{}, false
	}
	return cloneMaintenance(m), true
}

func (v view) ListAuditLogs() []domain.AuditLog {
	out := make([]domain.AuditLog, 0, len(v.state.audit))
	for _, a := range v.state.audit {
		out = append(out, cloneAudit(a))
	}
	return out
}

// Read helpers ---------------------------------------------------------------

// GetItem retrieves an item by ID from committed state.
func (s *Store) GetItem(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindItem(id)
}

// ListItems returns all items from committed state in insertion order.
func (s *Store) ListItems() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.items.list(cloneItem)
}

// GetSession retrieves a session by ID from committed state.
func (s *Store) GetSession(id string) (domain.BorrowSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindSession(id)
}

// ListTransactions returns all transactions from committed state.
func (s *Store) ListTransactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.transactions.list(cloneTransaction)
}

// ListAuditLogs returns the retained audit entries, newest first.
func (s *Store) ListAuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.audit)
}
