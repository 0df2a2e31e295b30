package remote

import "context"

// Client is the typed accessor over the remote document store. Every
// operation is scoped by the tenant's owner ID. Failures are
// distinguishable: connectivity-class errors satisfy
// models.IsTransient, server refusals satisfy models.IsRejected.
type Client interface {
	// Categories. Delete is a physical remove for administrative
	// cleanup; sync propagates deletions as tombstoned updates so other
	// devices can observe them.
	CreateCategory(ctx context.Context, ownerID string, doc CategoryDoc) (CreateResult, error)
	UpdateCategory(ctx context.Context, ownerID, remoteID string, doc CategoryDoc) error
	CategoriesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]CategoryRecord, error)
	DeleteCategory(ctx context.Context, ownerID, remoteID string) error

	// Expenses
	CreateExpense(ctx context.Context, ownerID string, doc ExpenseDoc) (CreateResult, error)
	UpdateExpense(ctx context.Context, ownerID, remoteID string, doc ExpenseDoc) error
	ExpensesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]ExpenseRecord, error)
	DeleteExpense(ctx context.Context, ownerID, remoteID string) error

	// User profile (document keyed by owner ID)
	GetUser(ctx context.Context, ownerID string) (*UserDoc, error)
	UpdateUser(ctx context.Context, ownerID string, doc UserDoc) error

	// Plan catalog (global, read-only)
	Plans(ctx context.Context) ([]PlanRecord, error)

	// WatchUser streams server-side changes to the user document (the
	// billing webhook updates plan_id / plan_expires_at out of band).
	WatchUser(ctx context.Context, ownerID string) (<-chan UserEvent, error)

	// SetToken installs the identity token obtained by the auth flow.
	SetToken(token string)

	// Close releases transport resources.
	Close() error
}

// CreateResult reports what the server assigned on document creation.
type CreateResult struct {
	RemoteID  string `json:"id"`
	UpdatedAt int64  `json:"updated_at"` // server clock, epoch millis
}

// CategoryDoc is the category wire payload.
type CategoryDoc struct {
	Name      string `json:"name"`
	Icon      string `json:"icono"`
	IsActive  bool   `json:"is_active"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at"`
}

// CategoryRecord pairs a document with its server-assigned ID.
type CategoryRecord struct {
	RemoteID string `json:"id"`
	CategoryDoc
}

// ExpenseDoc is the expense wire payload.
type ExpenseDoc struct {
	CategoryID string  `json:"category_id"`
	Amount     float64 `json:"monto"`
	OccurredAt int64   `json:"fecha"`
	UpdatedAt  int64   `json:"updated_at"`
	DeletedAt  *int64  `json:"deleted_at"`
}

// ExpenseRecord pairs a document with its server-assigned ID.
type ExpenseRecord struct {
	RemoteID string `json:"id"`
	ExpenseDoc
}

// UserDoc is the user profile wire payload.
type UserDoc struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	PlanID        string `json:"plan_id"`
	PlanExpiresAt *int64 `json:"plan_expires_at"`
	Timezone      string `json:"zona_horaria"`
	IsActive      bool   `json:"is_active"`
	UpdatedAt     int64  `json:"updated_at"`
}

// PlanRecord is a plan catalog entry.
type PlanRecord struct {
	RemoteID    string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Features    string  `json:"features"`
	IsActive    bool    `json:"is_active"`
	UpdatedAt   int64   `json:"updated_at"`
}

// UserEvent is one update from the user-document watch stream.
type UserEvent struct {
	OwnerID string  `json:"owner_id"`
	Doc     UserDoc `json:"doc"`
}
