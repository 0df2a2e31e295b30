package store

import (
	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
)

// Store is the local record store. Every mutation is atomic with respect
// to concurrent readers; no cross-row transactions are offered because
// the sync engine does not need them.
type Store interface {
	// Categories
	InsertCategory(c *models.Category) (int64, error)
	UpdateCategory(c *models.Category) error
	SoftDeleteCategory(localID int64) error
	ActiveCategories(ownerID string) ([]*models.Category, error)
	WatchActiveCategories(ownerID string) *events.Subscription[[]*models.Category]
	PendingCategories(ownerID string) ([]*models.Category, error)
	CategoryByLocalID(localID int64) (*models.Category, error)
	UpsertCategoryFromRemote(c *models.Category) error

	// Expenses
	InsertExpense(e *models.Expense) (int64, error)
	UpdateExpense(e *models.Expense) error
	SoftDeleteExpense(localID int64) error
	ActiveExpenses(ownerID string) ([]*models.Expense, error)
	WatchActiveExpenses(ownerID string) *events.Subscription[[]*models.Expense]
	PendingExpenses(ownerID string) ([]*models.Expense, error)
	ExpenseByLocalID(localID int64) (*models.Expense, error)
	UpsertExpenseFromRemote(e *models.Expense) error

	// MigrateCategoryRef rewrites expenses that reference a category by
	// the "local_<id>" fallback once the category gains a remote ID.
	MigrateCategoryRef(oldRef, remoteID string) error

	// Users
	SaveUser(u *models.User) error
	GetUser(ownerID string) (*models.User, error)
	PendingUser(ownerID string) (*models.User, error)
	UpsertUserFromRemote(u *models.User) error

	// Plans (pull-only catalog)
	UpsertPlanFromRemote(p *models.Plan) error
	Plans() ([]*models.Plan, error)

	// Sync-state transitions
	MarkSynced(kind models.Kind, localID int64) error
	MarkFailed(kind models.Kind, localID int64) error
	SetRemoteID(kind models.Kind, localID int64, remoteID string) error
	PendingCount(ownerID string, kind models.Kind) (int, error)

	Close() error
}
