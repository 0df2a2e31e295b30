package store_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
	"github.com/mbarrios/gastosync/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	logger := events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCategoryLifecycle(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	t.Run("insert marks pending", func(t *testing.T) {
		cat := &models.Category{OwnerID: owner, Name: "Food", Icon: "burger", IsActive: true}
		id, err := s.InsertCategory(cat)
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))

		got, err := s.CategoryByLocalID(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, got.SyncState)
		assert.Empty(t, got.RemoteID)
		assert.Greater(t, got.UpdatedAt, int64(0))
	})

	t.Run("update resets synced record to pending", func(t *testing.T) {
		cat := &models.Category{OwnerID: owner, Name: "Travel", Icon: "plane", IsActive: true}
		id, err := s.InsertCategory(cat)
		require.NoError(t, err)

		require.NoError(t, s.SetRemoteID(models.KindCategory, id, "rem-travel"))
		require.NoError(t, s.MarkSynced(models.KindCategory, id))

		before, err := s.CategoryByLocalID(id)
		require.NoError(t, err)
		require.Equal(t, models.StateSynced, before.SyncState)

		before.Name = "Trips"
		require.NoError(t, s.UpdateCategory(before))

		after, err := s.CategoryByLocalID(id)
		require.NoError(t, err)
		assert.Equal(t, "Trips", after.Name)
		assert.Equal(t, models.StatePending, after.SyncState)
		assert.GreaterOrEqual(t, after.UpdatedAt, before.UpdatedAt)
	})

	t.Run("soft delete keeps row with tombstone", func(t *testing.T) {
		cat := &models.Category{OwnerID: owner, Name: "Misc", Icon: "box", IsActive: true}
		id, err := s.InsertCategory(cat)
		require.NoError(t, err)

		require.NoError(t, s.SoftDeleteCategory(id))

		got, err := s.CategoryByLocalID(id)
		require.NoError(t, err)
		assert.True(t, got.Deleted())
		assert.False(t, got.IsActive)
		assert.Equal(t, models.StatePending, got.SyncState)

		active, err := s.ActiveCategories(owner)
		require.NoError(t, err)
		for _, c := range active {
			assert.NotEqual(t, id, c.LocalID)
		}

		pending, err := s.PendingCategories(owner)
		require.NoError(t, err)
		found := false
		for _, c := range pending {
			if c.LocalID == id {
				found = true
			}
		}
		assert.True(t, found, "tombstone must remain in the push queue")
	})

	t.Run("update of missing row", func(t *testing.T) {
		err := s.UpdateCategory(&models.Category{LocalID: 99999, OwnerID: owner})
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})
}

func TestMarkSyncedRequiresRemoteID(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	cat := &models.Category{OwnerID: owner, Name: "Health", Icon: "heart", IsActive: true}
	id, err := s.InsertCategory(cat)
	require.NoError(t, err)

	// A record with no remote identity can never claim agreement.
	err = s.MarkSynced(models.KindCategory, id)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	got, err := s.CategoryByLocalID(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.SyncState)

	require.NoError(t, s.SetRemoteID(models.KindCategory, id, "rem-1"))
	require.NoError(t, s.MarkSynced(models.KindCategory, id))

	got, err = s.CategoryByLocalID(id)
	require.NoError(t, err)
	assert.Equal(t, models.StateSynced, got.SyncState)
}

func TestUpsertCategoryFromRemote(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	t.Run("inserts unknown remote id", func(t *testing.T) {
		err := s.UpsertCategoryFromRemote(&models.Category{
			RemoteID: "rem-a", OwnerID: owner, Name: "Rent", Icon: "house",
			IsActive: true, UpdatedAt: 5000,
		})
		require.NoError(t, err)

		active, err := s.ActiveCategories(owner)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, models.StateSynced, active[0].SyncState)
	})

	t.Run("remote wins over local edit", func(t *testing.T) {
		err := s.UpsertCategoryFromRemote(&models.Category{
			RemoteID: "rem-a", OwnerID: owner, Name: "Housing", Icon: "house",
			IsActive: true, UpdatedAt: 6000,
		})
		require.NoError(t, err)

		active, err := s.ActiveCategories(owner)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "Housing", active[0].Name)
		assert.Equal(t, int64(6000), active[0].UpdatedAt)
	})

	t.Run("matches offline twin by name and icon", func(t *testing.T) {
		// Category created offline, then the same one arrives from
		// another device. It must merge, not duplicate.
		local := &models.Category{OwnerID: owner, Name: "Pets", Icon: "dog", IsActive: true}
		id, err := s.InsertCategory(local)
		require.NoError(t, err)

		err = s.UpsertCategoryFromRemote(&models.Category{
			RemoteID: "rem-pets", OwnerID: owner, Name: "Pets", Icon: "dog",
			IsActive: true, UpdatedAt: 7000,
		})
		require.NoError(t, err)

		got, err := s.CategoryByLocalID(id)
		require.NoError(t, err)
		assert.Equal(t, "rem-pets", got.RemoteID)
		assert.Equal(t, models.StateSynced, got.SyncState)

		active, err := s.ActiveCategories(owner)
		require.NoError(t, err)
		names := 0
		for _, c := range active {
			if c.Name == "Pets" {
				names++
			}
		}
		assert.Equal(t, 1, names)
	})

	t.Run("remote tombstone removes from active", func(t *testing.T) {
		deleted := int64(8000)
		err := s.UpsertCategoryFromRemote(&models.Category{
			RemoteID: "rem-pets", OwnerID: owner, Name: "Pets", Icon: "dog",
			IsActive: false, UpdatedAt: 8000, DeletedAt: &deleted,
		})
		require.NoError(t, err)

		active, err := s.ActiveCategories(owner)
		require.NoError(t, err)
		for _, c := range active {
			assert.NotEqual(t, "Pets", c.Name)
		}
	})
}

func TestExpenseLifecycle(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	exp := &models.Expense{
		OwnerID: owner, CategoryRemoteID: "rem-food",
		Amount: 12.50, OccurredAt: 1700000000000,
	}
	id, err := s.InsertExpense(exp)
	require.NoError(t, err)

	t.Run("insert marks pending", func(t *testing.T) {
		got, err := s.ExpenseByLocalID(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, got.SyncState)
		assert.Equal(t, 12.50, got.Amount)
	})

	t.Run("pending count", func(t *testing.T) {
		n, err := s.PendingCount(owner, models.KindExpense)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("soft delete stays pushable", func(t *testing.T) {
		require.NoError(t, s.SoftDeleteExpense(id))

		got, err := s.ExpenseByLocalID(id)
		require.NoError(t, err)
		assert.True(t, got.Deleted())

		active, err := s.ActiveExpenses(owner)
		require.NoError(t, err)
		assert.Empty(t, active)

		pending, err := s.PendingExpenses(owner)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

func TestMigrateCategoryRef(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	for i := 0; i < 3; i++ {
		_, err := s.InsertExpense(&models.Expense{
			OwnerID: owner, CategoryRemoteID: "local_7",
			Amount: float64(i + 1), OccurredAt: 1700000000000,
		})
		require.NoError(t, err)
	}
	_, err := s.InsertExpense(&models.Expense{
		OwnerID: owner, CategoryRemoteID: "rem-other",
		Amount: 9, OccurredAt: 1700000000000,
	})
	require.NoError(t, err)

	require.NoError(t, s.MigrateCategoryRef("local_7", "rem-assigned"))

	all, err := s.ActiveExpenses(owner)
	require.NoError(t, err)

	migrated, untouched := 0, 0
	for _, e := range all {
		switch e.CategoryRemoteID {
		case "rem-assigned":
			migrated++
		case "rem-other":
			untouched++
		case "local_7":
			t.Fatalf("expense %d still holds the placeholder ref", e.LocalID)
		}
	}
	assert.Equal(t, 3, migrated)
	assert.Equal(t, 1, untouched)
}

func TestWatchActiveCategories(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	_, err := s.InsertCategory(&models.Category{OwnerID: owner, Name: "A", Icon: "a", IsActive: true})
	require.NoError(t, err)

	sub := s.WatchActiveCategories(owner)
	defer sub.Cancel()

	// Current snapshot arrives first.
	snapshot := <-sub.C
	require.Len(t, snapshot, 1)
	assert.Equal(t, "A", snapshot[0].Name)

	_, err = s.InsertCategory(&models.Category{OwnerID: owner, Name: "B", Icon: "b", IsActive: true})
	require.NoError(t, err)

	snapshot = <-sub.C
	assert.Len(t, snapshot, 2)
}

func TestUserRoundtrip(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-9"

	t.Run("no pending user initially", func(t *testing.T) {
		_, err := s.PendingUser(owner)
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})

	t.Run("save marks pending", func(t *testing.T) {
		err := s.SaveUser(&models.User{
			OwnerID: owner, Name: "Maria", Email: "maria@example.com",
			Role: "user", PlanID: "free", Timezone: "America/Mexico_City", IsActive: true,
		})
		require.NoError(t, err)

		u, err := s.PendingUser(owner)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, u.SyncState)
	})

	t.Run("remote upsert wins and clears pending", func(t *testing.T) {
		expires := int64(1900000000000)
		err := s.UpsertUserFromRemote(&models.User{
			OwnerID: owner, Name: "Maria", Email: "maria@example.com",
			Role: "user", PlanID: "premium", PlanExpiresAt: &expires,
			Timezone: "America/Mexico_City", IsActive: true, UpdatedAt: 9000,
		})
		require.NoError(t, err)

		u, err := s.GetUser(owner)
		require.NoError(t, err)
		assert.Equal(t, "premium", u.PlanID)
		require.NotNil(t, u.PlanExpiresAt)
		assert.Equal(t, expires, *u.PlanExpiresAt)
		assert.Equal(t, models.StateSynced, u.SyncState)

		_, err = s.PendingUser(owner)
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})
}

func TestPlansCatalog(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertPlanFromRemote(&models.Plan{
		RemoteID: "plan-premium", Name: "Premium", Price: 9.99,
		Description: "Everything", IsActive: true, UpdatedAt: 100,
	}))
	require.NoError(t, s.UpsertPlanFromRemote(&models.Plan{
		RemoteID: "plan-free", Name: "Free", Price: 0,
		IsActive: true, UpdatedAt: 100,
	}))

	// Re-pull updates in place.
	require.NoError(t, s.UpsertPlanFromRemote(&models.Plan{
		RemoteID: "plan-premium", Name: "Premium", Price: 12.99,
		Description: "Everything", IsActive: true, UpdatedAt: 200,
	}))

	plans, err := s.Plans()
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Free", plans[0].Name) // ordered by price
	assert.Equal(t, 12.99, plans[1].Price)
}

func TestSetRemoteIDRejectsUsers(t *testing.T) {
	s := newTestStore(t)
	err := s.SetRemoteID(models.KindUser, 1, "anything")
	assert.Error(t, err)
}
