package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mbarrios/gastosync/internal/models"
)

// MockClient is an in-memory document store for tests. It assigns
// UUID remote IDs, stamps documents with its own server clock, and
// supports per-operation error injection.
type MockClient struct {
	mu sync.Mutex

	// Server state, keyed by remote ID (users keyed by owner ID).
	categories map[string]map[string]CategoryDoc // ownerID -> remoteID -> doc
	expenses   map[string]map[string]ExpenseDoc
	users      map[string]UserDoc
	plans      []PlanRecord

	// Error injection. NextError fails exactly one call; Err fails
	// every call until cleared.
	NextError error
	Err       error

	// Request tracking
	Calls []string

	// Server clock, epoch millis. Each write bumps it so updated_at
	// values are strictly increasing.
	clock int64

	token      string
	userEvents chan UserEvent
	closed     bool
}

// NewMockClient creates an empty mock store.
func NewMockClient() *MockClient {
	return &MockClient{
		categories: make(map[string]map[string]CategoryDoc),
		expenses:   make(map[string]map[string]ExpenseDoc),
		users:      make(map[string]UserDoc),
		clock:      1_000_000,
	}
}

func (m *MockClient) track(call string) error {
	m.Calls = append(m.Calls, call)
	if m.NextError != nil {
		err := m.NextError
		m.NextError = nil
		return err
	}
	return m.Err
}

func (m *MockClient) tick() int64 {
	m.clock += 1000
	return m.clock
}

// Clock returns the current server clock without advancing it.
func (m *MockClient) Clock() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// Categories

func (m *MockClient) CreateCategory(ctx context.Context, ownerID string, doc CategoryDoc) (CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("CreateCategory"); err != nil {
		return CreateResult{}, err
	}

	id := uuid.NewString()
	doc.UpdatedAt = m.tick()
	if m.categories[ownerID] == nil {
		m.categories[ownerID] = make(map[string]CategoryDoc)
	}
	m.categories[ownerID][id] = doc

	return CreateResult{RemoteID: id, UpdatedAt: doc.UpdatedAt}, nil
}

func (m *MockClient) UpdateCategory(ctx context.Context, ownerID, remoteID string, doc CategoryDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("UpdateCategory"); err != nil {
		return err
	}

	if _, ok := m.categories[ownerID][remoteID]; !ok {
		return &models.APIError{Code: "not_found", Message: "category not found", StatusCode: 404}
	}
	doc.UpdatedAt = m.tick()
	m.categories[ownerID][remoteID] = doc
	return nil
}

func (m *MockClient) CategoriesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]CategoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("CategoriesUpdatedAfter"); err != nil {
		return nil, err
	}

	var out []CategoryRecord
	for id, doc := range m.categories[ownerID] {
		if doc.UpdatedAt > sinceMillis {
			out = append(out, CategoryRecord{RemoteID: id, CategoryDoc: doc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })
	return out, nil
}

func (m *MockClient) DeleteCategory(ctx context.Context, ownerID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("DeleteCategory"); err != nil {
		return err
	}

	doc, ok := m.categories[ownerID][remoteID]
	if !ok {
		return &models.APIError{Code: "not_found", Message: "category not found", StatusCode: 404}
	}
	now := m.tick()
	doc.UpdatedAt = now
	doc.DeletedAt = &now
	doc.IsActive = false
	m.categories[ownerID][remoteID] = doc
	return nil
}

// Expenses

func (m *MockClient) CreateExpense(ctx context.Context, ownerID string, doc ExpenseDoc) (CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("CreateExpense"); err != nil {
		return CreateResult{}, err
	}

	id := uuid.NewString()
	doc.UpdatedAt = m.tick()
	if m.expenses[ownerID] == nil {
		m.expenses[ownerID] = make(map[string]ExpenseDoc)
	}
	m.expenses[ownerID][id] = doc

	return CreateResult{RemoteID: id, UpdatedAt: doc.UpdatedAt}, nil
}

func (m *MockClient) UpdateExpense(ctx context.Context, ownerID, remoteID string, doc ExpenseDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("UpdateExpense"); err != nil {
		return err
	}

	if _, ok := m.expenses[ownerID][remoteID]; !ok {
		return &models.APIError{Code: "not_found", Message: "expense not found", StatusCode: 404}
	}
	doc.UpdatedAt = m.tick()
	m.expenses[ownerID][remoteID] = doc
	return nil
}

func (m *MockClient) ExpensesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]ExpenseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("ExpensesUpdatedAfter"); err != nil {
		return nil, err
	}

	var out []ExpenseRecord
	for id, doc := range m.expenses[ownerID] {
		if doc.UpdatedAt > sinceMillis {
			out = append(out, ExpenseRecord{RemoteID: id, ExpenseDoc: doc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })
	return out, nil
}

func (m *MockClient) DeleteExpense(ctx context.Context, ownerID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("DeleteExpense"); err != nil {
		return err
	}

	doc, ok := m.expenses[ownerID][remoteID]
	if !ok {
		return &models.APIError{Code: "not_found", Message: "expense not found", StatusCode: 404}
	}
	now := m.tick()
	doc.UpdatedAt = now
	doc.DeletedAt = &now
	m.expenses[ownerID][remoteID] = doc
	return nil
}

// User profile

func (m *MockClient) GetUser(ctx context.Context, ownerID string) (*UserDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("GetUser"); err != nil {
		return nil, err
	}

	doc, ok := m.users[ownerID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &doc, nil
}

func (m *MockClient) UpdateUser(ctx context.Context, ownerID string, doc UserDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("UpdateUser"); err != nil {
		return err
	}

	doc.UpdatedAt = m.tick()
	m.users[ownerID] = doc
	return nil
}

// Plans

func (m *MockClient) Plans(ctx context.Context) ([]PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Plans"); err != nil {
		return nil, err
	}

	out := make([]PlanRecord, len(m.plans))
	copy(out, m.plans)
	return out, nil
}

// WatchUser returns a channel that PushUserEvent feeds.
func (m *MockClient) WatchUser(ctx context.Context, ownerID string) (<-chan UserEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("WatchUser"); err != nil {
		return nil, err
	}

	if m.userEvents == nil {
		m.userEvents = make(chan UserEvent, 16)
	}
	return m.userEvents, nil
}

func (m *MockClient) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		if m.userEvents != nil {
			close(m.userEvents)
			m.userEvents = nil
		}
	}
	return nil
}

// Helper methods for test setup

// SeedCategory inserts a server-side category and returns its ID.
func (m *MockClient) SeedCategory(ownerID string, doc CategoryDoc) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = m.tick()
	}
	if m.categories[ownerID] == nil {
		m.categories[ownerID] = make(map[string]CategoryDoc)
	}
	m.categories[ownerID][id] = doc
	return id
}

// SeedExpense inserts a server-side expense and returns its ID.
func (m *MockClient) SeedExpense(ownerID string, doc ExpenseDoc) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = m.tick()
	}
	if m.expenses[ownerID] == nil {
		m.expenses[ownerID] = make(map[string]ExpenseDoc)
	}
	m.expenses[ownerID][id] = doc
	return id
}

// SeedUser installs a server-side user document.
func (m *MockClient) SeedUser(ownerID string, doc UserDoc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = m.tick()
	}
	m.users[ownerID] = doc
}

// SeedPlan adds a plan catalog entry.
func (m *MockClient) SeedPlan(p PlanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.RemoteID == "" {
		p.RemoteID = uuid.NewString()
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = m.tick()
	}
	m.plans = append(m.plans, p)
}

// PushUserEvent feeds the watch channel.
func (m *MockClient) PushUserEvent(ev UserEvent) {
	m.mu.Lock()
	ch := m.userEvents
	m.mu.Unlock()

	if ch != nil {
		ch <- ev
	}
}

// Category returns the server copy of a category.
func (m *MockClient) Category(ownerID, remoteID string) (CategoryDoc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.categories[ownerID][remoteID]
	return doc, ok
}

// Expense returns the server copy of an expense.
func (m *MockClient) Expense(ownerID, remoteID string) (ExpenseDoc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.expenses[ownerID][remoteID]
	return doc, ok
}

// CategoryCount reports how many categories the server holds.
func (m *MockClient) CategoryCount(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.categories[ownerID])
}

// ExpenseCount reports how many expenses the server holds.
func (m *MockClient) ExpenseCount(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expenses[ownerID])
}

// CallCount reports how many calls matched the given name.
func (m *MockClient) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// FailNext arranges for the next call to fail with err.
func (m *MockClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NextError = err
}

// Unreachable makes every call fail with a connectivity error until
// Reachable is called.
func (m *MockClient) Unreachable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = fmt.Errorf("%w: connection refused", models.ErrUnreachable)
}

// Reachable clears the standing error.
func (m *MockClient) Reachable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = nil
}
