package models

// Kind identifies a synchronized entity kind. The value doubles as the
// remote collection name.
type Kind string

const (
	KindUser     Kind = "users"
	KindPlan     Kind = "plans"
	KindCategory Kind = "categories"
	KindExpense  Kind = "expenses"
)

// Kinds lists every kind in the order a sync cycle processes them.
// Categories go first so expenses can resolve category references.
func Kinds() []Kind {
	return []Kind{KindCategory, KindExpense, KindUser, KindPlan}
}

// SyncState tracks whether a record's last local change reached the
// remote store.
type SyncState string

const (
	// StatePending marks a local change not yet confirmed remote.
	StatePending SyncState = "PENDING"
	// StateSynced marks local and remote agreement as of UpdatedAt.
	StateSynced SyncState = "SYNCED"
	// StateFailed marks a push rejected by the server; retried on the
	// next cycle.
	StateFailed SyncState = "FAILED"
)

// Category is a user-defined expense category.
type Category struct {
	LocalID   int64
	RemoteID  string // empty until first successful push
	OwnerID   string
	Name      string
	Icon      string
	IsActive  bool
	UpdatedAt int64  // epoch millis
	DeletedAt *int64 // non-nil marks a soft delete
	SyncState SyncState
}

// Deleted reports whether the category carries a tombstone.
func (c *Category) Deleted() bool { return c.DeletedAt != nil }

// Expense is a single spend record.
type Expense struct {
	LocalID  int64
	RemoteID string
	OwnerID  string

	// CategoryRemoteID references the category's remote ID. For expenses
	// created offline against an unpushed category it holds the
	// "local_<id>" fallback until the category is created remotely.
	CategoryRemoteID string

	Amount     float64
	OccurredAt int64 // epoch millis

	UpdatedAt int64
	DeletedAt *int64
	SyncState SyncState
}

// Deleted reports whether the expense carries a tombstone.
func (e *Expense) Deleted() bool { return e.DeletedAt != nil }

// User is the tenant's profile. It follows a simplified sync variant:
// the user document always exists remotely (keyed by owner ID) and is
// never soft-deleted through this engine.
type User struct {
	LocalID       int64
	OwnerID       string // also the remote document ID
	Name          string
	Email         string
	Role          string
	PlanID        string
	PlanExpiresAt *int64
	Timezone      string
	IsActive      bool
	UpdatedAt     int64
	SyncState     SyncState
}

// Plan is a subscription plan from the global catalog. Pull-only: plans
// are never created or modified by a device.
type Plan struct {
	LocalID     int64
	RemoteID    string
	Name        string
	Price       float64
	Description string
	Features    string // JSON blob, opaque to the engine
	IsActive    bool
	UpdatedAt   int64
}
