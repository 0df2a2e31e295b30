package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger

	// Clock, swappable in tests.
	now func() int64

	// Live-query signals, keyed by owner.
	mu         sync.Mutex
	catSignals map[string]*events.Signal[[]*models.Category]
	expSignals map[string]*events.Signal[[]*models.Expense]
}

// NewSQLiteStore opens (and if needed initializes) the record database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		logger:     logger.WithField("component", "record_store"),
		now:        func() int64 { return time.Now().UnixMilli() },
		catSignals: make(map[string]*events.Signal[[]*models.Category]),
		expSignals: make(map[string]*events.Signal[[]*models.Expense]),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS categories (
        local_id   INTEGER PRIMARY KEY AUTOINCREMENT,
        remote_id  TEXT UNIQUE,
        owner_id   TEXT NOT NULL,
        name       TEXT NOT NULL,
        icon       TEXT NOT NULL,
        is_active  INTEGER NOT NULL DEFAULT 1,
        updated_at INTEGER NOT NULL,
        deleted_at INTEGER,
        sync_state TEXT NOT NULL DEFAULT 'PENDING'
    );
    CREATE INDEX IF NOT EXISTS idx_categories_owner ON categories(owner_id);
    CREATE INDEX IF NOT EXISTS idx_categories_owner_deleted ON categories(owner_id, deleted_at);

    CREATE TABLE IF NOT EXISTS expenses (
        local_id           INTEGER PRIMARY KEY AUTOINCREMENT,
        remote_id          TEXT UNIQUE,
        owner_id           TEXT NOT NULL,
        category_remote_id TEXT NOT NULL,
        amount             REAL NOT NULL,
        occurred_at        INTEGER NOT NULL,
        updated_at         INTEGER NOT NULL,
        deleted_at         INTEGER,
        sync_state         TEXT NOT NULL DEFAULT 'PENDING'
    );
    CREATE INDEX IF NOT EXISTS idx_expenses_owner ON expenses(owner_id);
    CREATE INDEX IF NOT EXISTS idx_expenses_owner_occurred ON expenses(owner_id, occurred_at);
    CREATE INDEX IF NOT EXISTS idx_expenses_owner_deleted ON expenses(owner_id, deleted_at);

    CREATE TABLE IF NOT EXISTS users (
        local_id        INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id        TEXT NOT NULL UNIQUE,
        name            TEXT NOT NULL,
        email           TEXT NOT NULL,
        role            TEXT NOT NULL,
        plan_id         TEXT NOT NULL,
        plan_expires_at INTEGER,
        timezone        TEXT NOT NULL,
        is_active       INTEGER NOT NULL DEFAULT 1,
        updated_at      INTEGER NOT NULL,
        sync_state      TEXT NOT NULL DEFAULT 'PENDING'
    );

    CREATE TABLE IF NOT EXISTS plans (
        local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
        remote_id   TEXT NOT NULL UNIQUE,
        name        TEXT NOT NULL,
        price       REAL NOT NULL,
        description TEXT,
        features    TEXT,
        is_active   INTEGER NOT NULL DEFAULT 1,
        updated_at  INTEGER NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Categories

// InsertCategory stores a new category as PENDING with a fresh timestamp.
func (s *SQLiteStore) InsertCategory(c *models.Category) (int64, error) {
	c.UpdatedAt = s.now()
	c.SyncState = models.StatePending

	res, err := s.db.Exec(`
        INSERT INTO categories (remote_id, owner_id, name, icon, is_active, updated_at, deleted_at, sync_state)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, nullStr(c.RemoteID), c.OwnerID, c.Name, c.Icon, c.IsActive, c.UpdatedAt, c.DeletedAt, c.SyncState)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category id: %w", err)
	}
	c.LocalID = id

	s.notifyCategories(c.OwnerID)
	return id, nil
}

// UpdateCategory overwrites the payload, bumps the timestamp and resets
// the record to PENDING.
func (s *SQLiteStore) UpdateCategory(c *models.Category) error {
	c.UpdatedAt = s.now()
	c.SyncState = models.StatePending

	res, err := s.db.Exec(`
        UPDATE categories
        SET name = ?, icon = ?, is_active = ?, updated_at = ?, deleted_at = ?, sync_state = ?
        WHERE local_id = ?
    `, c.Name, c.Icon, c.IsActive, c.UpdatedAt, c.DeletedAt, c.SyncState, c.LocalID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}

	s.notifyCategories(c.OwnerID)
	return nil
}

// SoftDeleteCategory tombstones a category. The row stays in place and
// propagates through push like any other edit.
func (s *SQLiteStore) SoftDeleteCategory(localID int64) error {
	now := s.now()

	c, err := s.CategoryByLocalID(localID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
        UPDATE categories
        SET deleted_at = ?, updated_at = ?, is_active = 0, sync_state = ?
        WHERE local_id = ?
    `, now, now, models.StatePending, localID)
	if err != nil {
		return fmt.Errorf("soft delete category: %w", err)
	}

	s.notifyCategories(c.OwnerID)
	return nil
}

// ActiveCategories returns the owner's categories without tombstones.
func (s *SQLiteStore) ActiveCategories(ownerID string) ([]*models.Category, error) {
	return s.queryCategories(`
        SELECT local_id, remote_id, owner_id, name, icon, is_active, updated_at, deleted_at, sync_state
        FROM categories
        WHERE owner_id = ? AND deleted_at IS NULL
        ORDER BY name
    `, ownerID)
}

// WatchActiveCategories returns a live query: the current snapshot is
// delivered immediately, then a new one after every category mutation
// for this owner.
func (s *SQLiteStore) WatchActiveCategories(ownerID string) *events.Subscription[[]*models.Category] {
	s.mu.Lock()
	sig, ok := s.catSignals[ownerID]
	if !ok {
		sig = events.NewSignal[[]*models.Category]()
		s.catSignals[ownerID] = sig
	}
	s.mu.Unlock()

	if _, has := sig.Get(); !has {
		if snapshot, err := s.ActiveCategories(ownerID); err == nil {
			sig.Set(snapshot)
		}
	}

	return sig.Subscribe(8)
}

// PendingCategories returns records awaiting push (PENDING or FAILED).
func (s *SQLiteStore) PendingCategories(ownerID string) ([]*models.Category, error) {
	return s.queryCategories(`
        SELECT local_id, remote_id, owner_id, name, icon, is_active, updated_at, deleted_at, sync_state
        FROM categories
        WHERE owner_id = ? AND sync_state IN ('PENDING', 'FAILED')
        ORDER BY local_id
    `, ownerID)
}

// CategoryByLocalID fetches one category, tombstoned or not.
func (s *SQLiteStore) CategoryByLocalID(localID int64) (*models.Category, error) {
	rows, err := s.queryCategories(`
        SELECT local_id, remote_id, owner_id, name, icon, is_active, updated_at, deleted_at, sync_state
        FROM categories
        WHERE local_id = ?
    `, localID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrRecordNotFound
	}
	return rows[0], nil
}

// UpsertCategoryFromRemote applies a pulled document. Keyed by remote ID;
// a category created offline (no remote ID yet) is matched by owner, name
// and icon so pull does not duplicate it. Remote always wins.
func (s *SQLiteStore) UpsertCategoryFromRemote(c *models.Category) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var localID int64
	err = tx.QueryRow(`SELECT local_id FROM categories WHERE remote_id = ?`, c.RemoteID).Scan(&localID)
	if err == sql.ErrNoRows {
		err = tx.QueryRow(`
            SELECT local_id FROM categories
            WHERE owner_id = ? AND name = ? AND icon = ? AND remote_id IS NULL
        `, c.OwnerID, c.Name, c.Icon).Scan(&localID)
	}

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
            INSERT INTO categories (remote_id, owner_id, name, icon, is_active, updated_at, deleted_at, sync_state)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `, c.RemoteID, c.OwnerID, c.Name, c.Icon, c.IsActive, c.UpdatedAt, c.DeletedAt, models.StateSynced)
		if err != nil {
			return fmt.Errorf("insert pulled category: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup category: %w", err)
	default:
		_, err = tx.Exec(`
            UPDATE categories
            SET remote_id = ?, name = ?, icon = ?, is_active = ?, updated_at = ?, deleted_at = ?, sync_state = ?
            WHERE local_id = ?
        `, c.RemoteID, c.Name, c.Icon, c.IsActive, c.UpdatedAt, c.DeletedAt, models.StateSynced, localID)
		if err != nil {
			return fmt.Errorf("update pulled category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	s.notifyCategories(c.OwnerID)
	return nil
}

func (s *SQLiteStore) queryCategories(query string, args ...interface{}) ([]*models.Category, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		var c models.Category
		var remoteID sql.NullString
		var deletedAt sql.NullInt64
		if err := rows.Scan(&c.LocalID, &remoteID, &c.OwnerID, &c.Name, &c.Icon,
			&c.IsActive, &c.UpdatedAt, &deletedAt, &c.SyncState); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.RemoteID = remoteID.String
		if deletedAt.Valid {
			v := deletedAt.Int64
			c.DeletedAt = &v
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Expenses

// InsertExpense stores a new expense as PENDING with a fresh timestamp.
func (s *SQLiteStore) InsertExpense(e *models.Expense) (int64, error) {
	e.UpdatedAt = s.now()
	e.SyncState = models.StatePending

	res, err := s.db.Exec(`
        INSERT INTO expenses (remote_id, owner_id, category_remote_id, amount, occurred_at, updated_at, deleted_at, sync_state)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, nullStr(e.RemoteID), e.OwnerID, e.CategoryRemoteID, e.Amount, e.OccurredAt, e.UpdatedAt, e.DeletedAt, e.SyncState)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}
	e.LocalID = id

	s.notifyExpenses(e.OwnerID)
	return id, nil
}

// UpdateExpense overwrites the payload, bumps the timestamp and resets
// the record to PENDING.
func (s *SQLiteStore) UpdateExpense(e *models.Expense) error {
	e.UpdatedAt = s.now()
	e.SyncState = models.StatePending

	res, err := s.db.Exec(`
        UPDATE expenses
        SET category_remote_id = ?, amount = ?, occurred_at = ?, updated_at = ?, deleted_at = ?, sync_state = ?
        WHERE local_id = ?
    `, e.CategoryRemoteID, e.Amount, e.OccurredAt, e.UpdatedAt, e.DeletedAt, e.SyncState, e.LocalID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}

	s.notifyExpenses(e.OwnerID)
	return nil
}

// SoftDeleteExpense tombstones an expense.
func (s *SQLiteStore) SoftDeleteExpense(localID int64) error {
	now := s.now()

	e, err := s.ExpenseByLocalID(localID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
        UPDATE expenses
        SET deleted_at = ?, updated_at = ?, sync_state = ?
        WHERE local_id = ?
    `, now, now, models.StatePending, localID)
	if err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}

	s.notifyExpenses(e.OwnerID)
	return nil
}

// ActiveExpenses returns the owner's expenses without tombstones, most
// recent first.
func (s *SQLiteStore) ActiveExpenses(ownerID string) ([]*models.Expense, error) {
	return s.queryExpenses(`
        SELECT local_id, remote_id, owner_id, category_remote_id, amount, occurred_at, updated_at, deleted_at, sync_state
        FROM expenses
        WHERE owner_id = ? AND deleted_at IS NULL
        ORDER BY occurred_at DESC
    `, ownerID)
}

// WatchActiveExpenses returns a live query over the owner's active
// expenses.
func (s *SQLiteStore) WatchActiveExpenses(ownerID string) *events.Subscription[[]*models.Expense] {
	s.mu.Lock()
	sig, ok := s.expSignals[ownerID]
	if !ok {
		sig = events.NewSignal[[]*models.Expense]()
		s.expSignals[ownerID] = sig
	}
	s.mu.Unlock()

	if _, has := sig.Get(); !has {
		if snapshot, err := s.ActiveExpenses(ownerID); err == nil {
			sig.Set(snapshot)
		}
	}

	return sig.Subscribe(8)
}

// PendingExpenses returns records awaiting push (PENDING or FAILED).
func (s *SQLiteStore) PendingExpenses(ownerID string) ([]*models.Expense, error) {
	return s.queryExpenses(`
        SELECT local_id, remote_id, owner_id, category_remote_id, amount, occurred_at, updated_at, deleted_at, sync_state
        FROM expenses
        WHERE owner_id = ? AND sync_state IN ('PENDING', 'FAILED')
        ORDER BY local_id
    `, ownerID)
}

// ExpenseByLocalID fetches one expense, tombstoned or not.
func (s *SQLiteStore) ExpenseByLocalID(localID int64) (*models.Expense, error) {
	rows, err := s.queryExpenses(`
        SELECT local_id, remote_id, owner_id, category_remote_id, amount, occurred_at, updated_at, deleted_at, sync_state
        FROM expenses
        WHERE local_id = ?
    `, localID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrRecordNotFound
	}
	return rows[0], nil
}

// UpsertExpenseFromRemote applies a pulled document, keyed by remote ID.
// Remote always wins.
func (s *SQLiteStore) UpsertExpenseFromRemote(e *models.Expense) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var localID int64
	err = tx.QueryRow(`SELECT local_id FROM expenses WHERE remote_id = ?`, e.RemoteID).Scan(&localID)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
            INSERT INTO expenses (remote_id, owner_id, category_remote_id, amount, occurred_at, updated_at, deleted_at, sync_state)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `, e.RemoteID, e.OwnerID, e.CategoryRemoteID, e.Amount, e.OccurredAt, e.UpdatedAt, e.DeletedAt, models.StateSynced)
		if err != nil {
			return fmt.Errorf("insert pulled expense: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup expense: %w", err)
	default:
		_, err = tx.Exec(`
            UPDATE expenses
            SET category_remote_id = ?, amount = ?, occurred_at = ?, updated_at = ?, deleted_at = ?, sync_state = ?
            WHERE local_id = ?
        `, e.CategoryRemoteID, e.Amount, e.OccurredAt, e.UpdatedAt, e.DeletedAt, models.StateSynced, localID)
		if err != nil {
			return fmt.Errorf("update pulled expense: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	s.notifyExpenses(e.OwnerID)
	return nil
}

// MigrateCategoryRef rewrites the "local_<id>" category fallback in
// expenses to the category's newly assigned remote ID.
func (s *SQLiteStore) MigrateCategoryRef(oldRef, remoteID string) error {
	res, err := s.db.Exec(`
        UPDATE expenses SET category_remote_id = ? WHERE category_remote_id = ?
    `, remoteID, oldRef)
	if err != nil {
		return fmt.Errorf("migrate category ref: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.WithFields(map[string]interface{}{
			"old_ref":   oldRef,
			"remote_id": remoteID,
			"rows":      n,
		}).Debug("Migrated expense category references")
	}
	return nil
}

func (s *SQLiteStore) queryExpenses(query string, args ...interface{}) ([]*models.Expense, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []*models.Expense
	for rows.Next() {
		var e models.Expense
		var remoteID sql.NullString
		var deletedAt sql.NullInt64
		if err := rows.Scan(&e.LocalID, &remoteID, &e.OwnerID, &e.CategoryRemoteID,
			&e.Amount, &e.OccurredAt, &e.UpdatedAt, &deletedAt, &e.SyncState); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.RemoteID = remoteID.String
		if deletedAt.Valid {
			v := deletedAt.Int64
			e.DeletedAt = &v
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Users

// SaveUser upserts the local profile row and marks it PENDING.
func (s *SQLiteStore) SaveUser(u *models.User) error {
	u.UpdatedAt = s.now()
	u.SyncState = models.StatePending

	_, err := s.db.Exec(`
        INSERT INTO users (owner_id, name, email, role, plan_id, plan_expires_at, timezone, is_active, updated_at, sync_state)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(owner_id) DO UPDATE SET
            name = excluded.name,
            email = excluded.email,
            role = excluded.role,
            plan_id = excluded.plan_id,
            plan_expires_at = excluded.plan_expires_at,
            timezone = excluded.timezone,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at,
            sync_state = excluded.sync_state
    `, u.OwnerID, u.Name, u.Email, u.Role, u.PlanID, u.PlanExpiresAt, u.Timezone, u.IsActive, u.UpdatedAt, u.SyncState)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUser returns the owner's profile row.
func (s *SQLiteStore) GetUser(ownerID string) (*models.User, error) {
	u, err := s.queryUser(`
        SELECT local_id, owner_id, name, email, role, plan_id, plan_expires_at, timezone, is_active, updated_at, sync_state
        FROM users WHERE owner_id = ?
    `, ownerID)
	return u, err
}

// PendingUser returns the profile row when it awaits push, or
// ErrRecordNotFound.
func (s *SQLiteStore) PendingUser(ownerID string) (*models.User, error) {
	return s.queryUser(`
        SELECT local_id, owner_id, name, email, role, plan_id, plan_expires_at, timezone, is_active, updated_at, sync_state
        FROM users WHERE owner_id = ? AND sync_state IN ('PENDING', 'FAILED')
    `, ownerID)
}

// UpsertUserFromRemote applies the pulled profile document. Remote wins.
func (s *SQLiteStore) UpsertUserFromRemote(u *models.User) error {
	_, err := s.db.Exec(`
        INSERT INTO users (owner_id, name, email, role, plan_id, plan_expires_at, timezone, is_active, updated_at, sync_state)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(owner_id) DO UPDATE SET
            name = excluded.name,
            email = excluded.email,
            role = excluded.role,
            plan_id = excluded.plan_id,
            plan_expires_at = excluded.plan_expires_at,
            timezone = excluded.timezone,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at,
            sync_state = excluded.sync_state
    `, u.OwnerID, u.Name, u.Email, u.Role, u.PlanID, u.PlanExpiresAt, u.Timezone, u.IsActive, u.UpdatedAt, models.StateSynced)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryUser(query string, args ...interface{}) (*models.User, error) {
	var u models.User
	var planExpires sql.NullInt64
	err := s.db.QueryRow(query, args...).Scan(&u.LocalID, &u.OwnerID, &u.Name, &u.Email,
		&u.Role, &u.PlanID, &planExpires, &u.Timezone, &u.IsActive, &u.UpdatedAt, &u.SyncState)
	if err == sql.ErrNoRows {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if planExpires.Valid {
		v := planExpires.Int64
		u.PlanExpiresAt = &v
	}
	return &u, nil
}

// Plans

// UpsertPlanFromRemote applies a pulled catalog entry.
func (s *SQLiteStore) UpsertPlanFromRemote(p *models.Plan) error {
	_, err := s.db.Exec(`
        INSERT INTO plans (remote_id, name, price, description, features, is_active, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(remote_id) DO UPDATE SET
            name = excluded.name,
            price = excluded.price,
            description = excluded.description,
            features = excluded.features,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at
    `, p.RemoteID, p.Name, p.Price, p.Description, p.Features, p.IsActive, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

// Plans returns the cached plan catalog.
func (s *SQLiteStore) Plans() ([]*models.Plan, error) {
	rows, err := s.db.Query(`
        SELECT local_id, remote_id, name, price, description, features, is_active, updated_at
        FROM plans ORDER BY price
    `)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []*models.Plan
	for rows.Next() {
		var p models.Plan
		var desc, features sql.NullString
		if err := rows.Scan(&p.LocalID, &p.RemoteID, &p.Name, &p.Price, &desc, &features, &p.IsActive, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p.Description = desc.String
		p.Features = features.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Sync-state transitions

// MarkSynced transitions a record to SYNCED. For categories and expenses
// the row must already carry a remote ID; a record that was never created
// remotely cannot claim agreement.
func (s *SQLiteStore) MarkSynced(kind models.Kind, localID int64) error {
	var res sql.Result
	var err error

	switch kind {
	case models.KindCategory:
		res, err = s.db.Exec(`
            UPDATE categories SET sync_state = ? WHERE local_id = ? AND remote_id IS NOT NULL
        `, models.StateSynced, localID)
	case models.KindExpense:
		res, err = s.db.Exec(`
            UPDATE expenses SET sync_state = ? WHERE local_id = ? AND remote_id IS NOT NULL
        `, models.StateSynced, localID)
	case models.KindUser:
		res, err = s.db.Exec(`
            UPDATE users SET sync_state = ? WHERE local_id = ?
        `, models.StateSynced, localID)
	default:
		return fmt.Errorf("mark synced: unsupported kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// MarkFailed transitions a record to FAILED after a server rejection.
func (s *SQLiteStore) MarkFailed(kind models.Kind, localID int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE `+table+` SET sync_state = ? WHERE local_id = ?`,
		models.StateFailed, localID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// SetRemoteID records the identifier assigned by the remote store on
// first creation.
func (s *SQLiteStore) SetRemoteID(kind models.Kind, localID int64, remoteID string) error {
	table, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	if kind == models.KindUser {
		return fmt.Errorf("set remote id: user documents are keyed by owner id")
	}

	res, err := s.db.Exec(
		`UPDATE `+table+` SET remote_id = ? WHERE local_id = ?`,
		remoteID, localID)
	if err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// PendingCount reports how many records await push for an owner and kind.
func (s *SQLiteStore) PendingCount(ownerID string, kind models.Kind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}

	var n int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM `+table+` WHERE owner_id = ? AND sync_state IN ('PENDING', 'FAILED')`,
		ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

func tableFor(kind models.Kind) (string, error) {
	switch kind {
	case models.KindCategory:
		return "categories", nil
	case models.KindExpense:
		return "expenses", nil
	case models.KindUser:
		return "users", nil
	default:
		return "", fmt.Errorf("unsupported kind %q", kind)
	}
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// notifyCategories republishes the owner's active-category snapshot to
// live-query subscribers.
func (s *SQLiteStore) notifyCategories(ownerID string) {
	s.mu.Lock()
	sig, ok := s.catSignals[ownerID]
	s.mu.Unlock()
	if !ok {
		return
	}

	snapshot, err := s.ActiveCategories(ownerID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to refresh category snapshot")
		return
	}
	sig.Set(snapshot)
}

func (s *SQLiteStore) notifyExpenses(ownerID string) {
	s.mu.Lock()
	sig, ok := s.expSignals[ownerID]
	s.mu.Unlock()
	if !ok {
		return
	}

	snapshot, err := s.ActiveExpenses(ownerID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to refresh expense snapshot")
		return
	}
	sig.Set(snapshot)
}
