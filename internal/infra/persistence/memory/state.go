package memory

import (
	"slices"

	"equiploan/pkg/domain"
)

// table keeps rows keyed by id while remembering insertion order for display.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]T)}
}

func (t table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) put(id string, v T) {
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) remove(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	if idx := slices.Index(t.order, id); idx >= 0 {
		t.order = slices.Delete(t.order, idx, idx+1)
	}
}

func (t table[T]) list(cloneFn func(T) T) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cloneFn(t.rows[id]))
	}
	return out
}

func (t table[T]) clone(cloneFn func(T) T) table[T] {
	cp := table[T]{rows: make(map[string]T, len(t.rows)), order: slices.Clone(t.order)}
	for k, v := range t.rows {
		cp.rows[k] = cloneFn(v)
	}
	return cp
}

func (t table[T]) find(match func(T) bool) (T, bool) {
	for _, id := range t.order {
		if v := t.rows[id]; match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type memoryState struct {
	items        table[domain.Item]
	categories   table[domain.Category]
	transactions table[domain.Transaction]
	sessions     table[domain.BorrowSession]
	maintenance  table[domain.MaintenanceLog]
	audit        []domain.AuditLog
}

func newMemoryState() memoryState {
	return memoryState{
		items:        newTable[domain.Item](),
		categories:   newTable[domain.Category](),
		transactions: newTable[domain.Transaction](),
		sessions:     newTable[domain.BorrowSession](),
		maintenance:  newTable[domain.MaintenanceLog](),
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		items:        s.items.clone(cloneItem),
		categories:   s.categories.clone(cloneCategory),
		transactions: s.transactions.clone(cloneTransaction),
		sessions:     s.sessions.clone(cloneSession),
		maintenance:  s.maintenance.clone(cloneMaintenance),
		audit:        slices.Clone(s.audit),
	}
}

// appendAudit prepends entry and evicts the oldest entries beyond capacity.
func (s *memoryState) appendAudit(entry domain.AuditLog) {
	s.audit = append([]domain.AuditLog{entry}, s.audit...)
	if len(s.audit) > domain.AuditLogCapacity {
		s.audit = s.audit[:domain.AuditLogCapacity]
	}
}

func cloneItem(i domain.Item) domain.Item             { return i }
func cloneCategory(c domain.Category) domain.Category { return c }

func cloneTransaction(t domain.Transaction) domain.Transaction {
	cp := t
	cp.DateBorrowed = clonePtr(t.DateBorrowed)
	cp.DateReturned = clonePtr(t.DateReturned)
	cp.ConditionOnReturn = clonePtr(t.ConditionOnReturn)
	return cp
}

func cloneSession(s domain.BorrowSession) domain.BorrowSession {
	cp := s
	cp.ItemIDs = slices.Clone(s.ItemIDs)
	cp.ReleasedItemIDs = slices.Clone(s.ReleasedItemIDs)
	cp.ReservedItemIDs = slices.Clone(s.ReservedItemIDs)
	cp.DateReleased = clonePtr(s.DateReleased)
	cp.DateCompleted = clonePtr(s.DateCompleted)
	return cp
}

func cloneMaintenance(m domain.MaintenanceLog) domain.MaintenanceLog {
	cp := m
	cp.ResolvedDate = clonePtr(m.ResolvedDate)
	cp.FinalCondition = clonePtr(m.FinalCondition)
	return cp
}

func cloneAudit(a domain.AuditLog) domain.AuditLog { return a }

func snapshotFromMemoryState(state memoryState) domain.Snapshot {
	return domain.Snapshot{
		Version:      domain.SnapshotVersion,
		Items:        state.items.list(cloneItem),
		Categories:   state.categories.list(cloneCategory),
		Transactions: state.transactions.list(cloneTransaction),
		Maintenance:  state.maintenance.list(cloneMaintenance),
		AuditLogs:    slices.Clone(state.audit),
		Sessions:     state.sessions.list(cloneSession),
	}
}

func memoryStateFromSnapshot(snapshot domain.Snapshot) memoryState {
	state := newMemoryState()
	for _, v := range snapshot.Items {
		state.items.put(v.ID, cloneItem(v))
	}
	for _, v := range snapshot.Categories {
		state.categories.put(v.ID, cloneCategory(v))
	}
	for _, v := range snapshot.Transactions {
		state.transactions.put(v.ID, cloneTransaction(v))
	}
	for _, v := range snapshot.Maintenance {
		state.maintenance.put(v.ID, cloneMaintenance(v))
	}
	for _, v := range snapshot.Sessions {
		state.sessions.put(v.ID, cloneSession(v))
	}
	state.audit = slices.Clone(snapshot.AuditLogs)
	if len(state.audit) > domain.AuditLogCapacity {
		state.audit = state.audit[:domain.AuditLogCapacity]
	}
	return state
}

// migrateSnapshot normalises snapshots written by older versions: nil
// collections become empty, records without an id are dropped, session
// release lists are restricted to members.
func migrateSnapshot(snapshot domain.Snapshot) domain.Snapshot {
	if snapshot.Items == nil {
		snapshot.Items = []domain.Item{}
	}
	if snapshot.Categories == nil {
		snapshot.Categories = []domain.Category{}
	}
	if snapshot.Transactions == nil {
		snapshot.Transactions = []domain.Transaction{}
	}
	if snapshot.Maintenance == nil {
		snapshot.Maintenance = []domain.MaintenanceLog{}
	}
	if snapshot.AuditLogs == nil {
		snapshot.AuditLogs = []domain.AuditLog{}
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = []domain.BorrowSession{}
	}

	snapshot.Items = slices.DeleteFunc(slices.Clone(snapshot.Items), func(i domain.Item) bool { return i.ID == "" })
	snapshot.Categories = slices.DeleteFunc(slices.Clone(snapshot.Categories), func(c domain.Category) bool { return c.ID == "" })
	snapshot.Transactions = slices.DeleteFunc(slices.Clone(snapshot.Transactions), func(t domain.Transaction) bool { return t.ID == "" })
	snapshot.Maintenance = slices.DeleteFunc(slices.Clone(snapshot.Maintenance), func(m domain.MaintenanceLog) bool { return m.ID == "" })
	snapshot.Sessions = slices.DeleteFunc(slices.Clone(snapshot.Sessions), func(s domain.BorrowSession) bool { return s.ID == "" })

	for i, session := range snapshot.Sessions {
		if session.ItemIDs == nil {
			session.ItemIDs = []string{}
		}
		session.ReleasedItemIDs = slices.DeleteFunc(slices.Clone(session.ReleasedItemIDs), func(id string) bool {
			return !slices.Contains(session.ItemIDs, id)
		})
		if len(session.ReleasedItemIDs) == 0 {
			session.ReleasedItemIDs = nil
		}
		snapshot.Sessions[i] = session
	}
	snapshot.Version = domain.SnapshotVersion
	return snapshot
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
