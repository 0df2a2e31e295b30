package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
	"github.com/mbarrios/gastosync/internal/remote"
	"github.com/mbarrios/gastosync/internal/state"
	"github.com/mbarrios/gastosync/internal/store"
)

// Engine runs the push-then-pull sync cycle. Push goes first so local
// edits reach the server before the pull can echo them back; pull then
// applies everything newer than the per-kind checkpoint, remote wins.
type Engine struct {
	store  store.Store
	state  state.Store
	client remote.Client
	logger *events.Logger

	// Progress tracking
	progress atomic.Value // *Progress
	events   chan Event

	// Cycle state
	mu           sync.Mutex
	syncing      bool
	cancelFn     context.CancelFunc
	eventsClosed bool

	// Injectable clock, epoch millis.
	now func() int64
}

// Progress tracks one cycle.
type Progress struct {
	CycleID   string
	Phase     string
	Pushed    int
	Rejected  int
	Pulled    int
	StartTime time.Time
	Errors    []error
}

// Event is one observable step of a cycle.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Kind      models.Kind
	LocalID   int64
	Error     error
	Progress  *Progress
}

// EventType defines cycle event types.
type EventType string

const (
	EventStarted        EventType = "started"
	EventRecordPushed   EventType = "record_pushed"
	EventRecordRejected EventType = "record_rejected"
	EventPulled         EventType = "pulled"
	EventCompleted      EventType = "completed"
	EventFailed         EventType = "failed"
)

// Options configures one cycle.
type Options struct {
	// Full drops the owner's checkpoints first, forcing a pull of the
	// complete remote dataset.
	Full bool
}

// NewEngine creates a sync engine.
func NewEngine(
	recordStore store.Store,
	checkpoints state.Store,
	client remote.Client,
	logger *events.Logger,
) *Engine {
	return &Engine{
		store:  recordStore,
		state:  checkpoints,
		client: client,
		logger: logger.WithField("component", "sync_engine"),
		events: make(chan Event, 100),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// GetProgress returns current progress.
func (e *Engine) GetProgress() *Progress {
	if p := e.progress.Load(); p != nil {
		return p.(*Progress)
	}
	return nil
}

// ErrEngineClosed is returned by Sync after Close.
var ErrEngineClosed = errors.New("sync engine is closed")

// Sync runs one full cycle for an owner. Only one cycle runs at a
// time; a second call while one is in flight returns
// models.ErrSyncInProgress. A closed engine stays closed.
func (e *Engine) Sync(ctx context.Context, ownerID string, opts Options) error {
	e.mu.Lock()
	if e.eventsClosed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.syncing {
		e.mu.Unlock()
		return models.ErrSyncInProgress
	}
	e.syncing = true

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.syncing = false
		e.cancelFn = nil
		e.mu.Unlock()
	}()

	progress := &Progress{
		CycleID:   uuid.NewString(),
		Phase:     "push",
		StartTime: time.Now(),
	}
	e.progress.Store(progress)

	e.logger.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"cycle_id": progress.CycleID,
		"full":     opts.Full,
	}).Info("Starting sync cycle")

	e.emitEvent(Event{
		Type:      EventStarted,
		Timestamp: time.Now(),
		Progress:  progress,
	})

	// The cycle counts as attempted even if it fails partway; the
	// wall clock is display-only and must not gate retries.
	if err := e.state.SetLastSyncMillis(ownerID, e.now()); err != nil {
		return e.handleError(fmt.Errorf("record sync time: %w", err))
	}

	if opts.Full {
		if err := e.state.Reset(ownerID); err != nil {
			return e.handleError(fmt.Errorf("reset checkpoints: %w", err))
		}
	}

	if err := e.push(ctx, ownerID); err != nil {
		return e.handleError(err)
	}

	e.updatePhase("pull")

	if err := e.pull(ctx, ownerID); err != nil {
		return e.handleError(err)
	}

	completed := *e.GetProgress()
	completed.Phase = "completed"
	e.progress.Store(&completed)
	e.emitEvent(Event{
		Type:      EventCompleted,
		Timestamp: time.Now(),
		Progress:  &completed,
	})

	e.logger.WithFields(map[string]interface{}{
		"cycle_id": completed.CycleID,
		"duration": time.Since(completed.StartTime),
		"pushed":   completed.Pushed,
		"rejected": completed.Rejected,
		"pulled":   completed.Pulled,
	}).Info("Sync cycle completed")

	return nil
}

// Close stops any ongoing cycle and closes the event channel.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.cancelFn()
	}
	if !e.eventsClosed {
		close(e.events)
		e.eventsClosed = true
	}
}

// Cancel stops an ongoing cycle.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.logger.Info("Cancelling sync")
		e.cancelFn()
	}
}

// push sends every pending local change. Categories go before expenses
// so an expense's "local_<id>" category reference can be migrated to
// the real remote ID within the same cycle.
func (e *Engine) push(ctx context.Context, ownerID string) error {
	if err := e.pushCategories(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "push", Kind: models.KindCategory, OwnerID: ownerID, Err: err}
	}
	if err := e.pushExpenses(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "push", Kind: models.KindExpense, OwnerID: ownerID, Err: err}
	}
	if err := e.pushUser(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "push", Kind: models.KindUser, OwnerID: ownerID, Err: err}
	}
	return nil
}

func (e *Engine) pushCategories(ctx context.Context, ownerID string) error {
	pending, err := e.store.PendingCategories(ownerID)
	if err != nil {
		return fmt.Errorf("load pending categories: %w", err)
	}

	for _, cat := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pushed, err := e.pushCategory(ctx, ownerID, cat)
		if err != nil {
			if models.IsRejected(err) {
				e.rejectRecord(models.KindCategory, cat.LocalID, err)
				continue
			}
			return err
		}

		if pushed {
			e.recordPushed(models.KindCategory, cat.LocalID)
		}
	}

	return nil
}

func (e *Engine) pushCategory(ctx context.Context, ownerID string, cat *models.Category) (bool, error) {
	doc := remote.CategoryDoc{
		Name:      cat.Name,
		Icon:      cat.Icon,
		IsActive:  cat.IsActive,
		UpdatedAt: cat.UpdatedAt,
		DeletedAt: cat.DeletedAt,
	}

	switch {
	case cat.RemoteID == "" && cat.Deleted():
		// Created and deleted without ever reaching the server. There
		// is nothing remote to create or delete; it stays pending so
		// it never becomes SYNCED without a remote ID.
		e.logger.WithField("local_id", cat.LocalID).Debug("Skipping tombstone never pushed")
		return false, nil

	case cat.RemoteID == "":
		res, err := e.client.CreateCategory(ctx, ownerID, doc)
		if err != nil {
			return false, err
		}
		if err := e.store.SetRemoteID(models.KindCategory, cat.LocalID, res.RemoteID); err != nil {
			return false, fmt.Errorf("set remote id: %w", err)
		}
		// Expenses recorded offline referenced this category as
		// "local_<id>"; rewrite them now that the real ID exists.
		if err := e.store.MigrateCategoryRef(localRef(cat.LocalID), res.RemoteID); err != nil {
			return false, fmt.Errorf("migrate category refs: %w", err)
		}

	default:
		// Tombstones ride the same full-payload update so the local
		// deleted_at reaches the server document and fans out to other
		// devices through their incremental pulls. The remote store is
		// never asked to physically delete during sync.
		if err := e.client.UpdateCategory(ctx, ownerID, cat.RemoteID, doc); err != nil {
			return false, err
		}
	}

	return true, e.store.MarkSynced(models.KindCategory, cat.LocalID)
}

func (e *Engine) pushExpenses(ctx context.Context, ownerID string) error {
	pending, err := e.store.PendingExpenses(ownerID)
	if err != nil {
		return fmt.Errorf("load pending expenses: %w", err)
	}

	for _, exp := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pushed, err := e.pushExpense(ctx, ownerID, exp)
		if err != nil {
			if models.IsRejected(err) {
				e.rejectRecord(models.KindExpense, exp.LocalID, err)
				continue
			}
			return err
		}

		if pushed {
			e.recordPushed(models.KindExpense, exp.LocalID)
		}
	}

	return nil
}

func (e *Engine) pushExpense(ctx context.Context, ownerID string, exp *models.Expense) (bool, error) {
	// An unresolved category reference means the category's own create
	// failed earlier in this cycle. Hold the expense back; it stays
	// pending and retries once the category exists remotely.
	if exp.RemoteID == "" && isLocalRef(exp.CategoryRemoteID) {
		e.logger.WithFields(map[string]interface{}{
			"local_id":     exp.LocalID,
			"category_ref": exp.CategoryRemoteID,
		}).Debug("Holding expense with unresolved category ref")
		return false, nil
	}

	doc := remote.ExpenseDoc{
		CategoryID: exp.CategoryRemoteID,
		Amount:     exp.Amount,
		OccurredAt: exp.OccurredAt,
		UpdatedAt:  exp.UpdatedAt,
		DeletedAt:  exp.DeletedAt,
	}

	switch {
	case exp.RemoteID == "" && exp.Deleted():
		e.logger.WithField("local_id", exp.LocalID).Debug("Skipping tombstone never pushed")
		return false, nil

	case exp.RemoteID == "":
		res, err := e.client.CreateExpense(ctx, ownerID, doc)
		if err != nil {
			return false, err
		}
		if err := e.store.SetRemoteID(models.KindExpense, exp.LocalID, res.RemoteID); err != nil {
			return false, fmt.Errorf("set remote id: %w", err)
		}

	default:
		// Tombstones ride the update path; see pushCategory.
		if err := e.client.UpdateExpense(ctx, ownerID, exp.RemoteID, doc); err != nil {
			return false, err
		}
	}

	return true, e.store.MarkSynced(models.KindExpense, exp.LocalID)
}

func (e *Engine) pushUser(ctx context.Context, ownerID string) error {
	user, err := e.store.PendingUser(ownerID)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load pending user: %w", err)
	}

	doc := remote.UserDoc{
		Name:          user.Name,
		Email:         user.Email,
		Role:          user.Role,
		PlanID:        user.PlanID,
		PlanExpiresAt: user.PlanExpiresAt,
		Timezone:      user.Timezone,
		IsActive:      user.IsActive,
		UpdatedAt:     user.UpdatedAt,
	}

	if err := e.client.UpdateUser(ctx, ownerID, doc); err != nil {
		if models.IsRejected(err) {
			e.rejectRecord(models.KindUser, user.LocalID, err)
			return nil
		}
		return err
	}

	if err := e.store.MarkSynced(models.KindUser, user.LocalID); err != nil {
		return err
	}

	e.recordPushed(models.KindUser, user.LocalID)
	return nil
}

// pull applies everything the server changed since the per-kind
// checkpoints. The remote copy wins unconditionally; the checkpoint
// advances to the highest updated_at applied.
func (e *Engine) pull(ctx context.Context, ownerID string) error {
	if err := e.pullCategories(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "pull", Kind: models.KindCategory, OwnerID: ownerID, Err: err}
	}
	if err := e.pullExpenses(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "pull", Kind: models.KindExpense, OwnerID: ownerID, Err: err}
	}
	if err := e.pullUser(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "pull", Kind: models.KindUser, OwnerID: ownerID, Err: err}
	}
	if err := e.pullPlans(ctx, ownerID); err != nil {
		return &models.SyncError{Phase: "pull", Kind: models.KindPlan, OwnerID: ownerID, Err: err}
	}
	return nil
}

func (e *Engine) pullCategories(ctx context.Context, ownerID string) error {
	since, err := e.state.Checkpoint(ownerID, string(models.KindCategory))
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	docs, err := e.client.CategoriesUpdatedAfter(ctx, ownerID, since)
	if err != nil {
		return err
	}

	maxSeen := since
	for _, rec := range docs {
		cat := &models.Category{
			RemoteID:  rec.RemoteID,
			OwnerID:   ownerID,
			Name:      rec.Name,
			Icon:      rec.Icon,
			IsActive:  rec.IsActive,
			UpdatedAt: rec.UpdatedAt,
			DeletedAt: rec.DeletedAt,
			SyncState: models.StateSynced,
		}
		if err := e.store.UpsertCategoryFromRemote(cat); err != nil {
			return fmt.Errorf("apply remote category %s: %w", rec.RemoteID, err)
		}
		if rec.UpdatedAt > maxSeen {
			maxSeen = rec.UpdatedAt
		}
	}

	if maxSeen > since {
		if err := e.state.Advance(ownerID, string(models.KindCategory), maxSeen); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	e.recordPulled(models.KindCategory, len(docs))
	return nil
}

func (e *Engine) pullExpenses(ctx context.Context, ownerID string) error {
	since, err := e.state.Checkpoint(ownerID, string(models.KindExpense))
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	docs, err := e.client.ExpensesUpdatedAfter(ctx, ownerID, since)
	if err != nil {
		return err
	}

	maxSeen := since
	for _, rec := range docs {
		exp := &models.Expense{
			RemoteID:         rec.RemoteID,
			OwnerID:          ownerID,
			CategoryRemoteID: rec.CategoryID,
			Amount:           rec.Amount,
			OccurredAt:       rec.OccurredAt,
			UpdatedAt:        rec.UpdatedAt,
			DeletedAt:        rec.DeletedAt,
			SyncState:        models.StateSynced,
		}
		if err := e.store.UpsertExpenseFromRemote(exp); err != nil {
			return fmt.Errorf("apply remote expense %s: %w", rec.RemoteID, err)
		}
		if rec.UpdatedAt > maxSeen {
			maxSeen = rec.UpdatedAt
		}
	}

	if maxSeen > since {
		if err := e.state.Advance(ownerID, string(models.KindExpense), maxSeen); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	e.recordPulled(models.KindExpense, len(docs))
	return nil
}

func (e *Engine) pullUser(ctx context.Context, ownerID string) error {
	doc, err := e.client.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			// No remote profile yet. The first push will create one.
			return nil
		}
		return err
	}

	user := &models.User{
		OwnerID:       ownerID,
		Name:          doc.Name,
		Email:         doc.Email,
		Role:          doc.Role,
		PlanID:        doc.PlanID,
		PlanExpiresAt: doc.PlanExpiresAt,
		Timezone:      doc.Timezone,
		IsActive:      doc.IsActive,
		UpdatedAt:     doc.UpdatedAt,
		SyncState:     models.StateSynced,
	}
	if err := e.store.UpsertUserFromRemote(user); err != nil {
		return fmt.Errorf("apply remote user: %w", err)
	}

	e.recordPulled(models.KindUser, 1)
	return nil
}

func (e *Engine) pullPlans(ctx context.Context, ownerID string) error {
	plans, err := e.client.Plans(ctx)
	if err != nil {
		return err
	}

	for _, rec := range plans {
		p := &models.Plan{
			RemoteID:    rec.RemoteID,
			Name:        rec.Name,
			Price:       rec.Price,
			Description: rec.Description,
			Features:    rec.Features,
			IsActive:    rec.IsActive,
			UpdatedAt:   rec.UpdatedAt,
		}
		if err := e.store.UpsertPlanFromRemote(p); err != nil {
			return fmt.Errorf("apply plan %s: %w", rec.RemoteID, err)
		}
	}

	e.recordPulled(models.KindPlan, len(plans))
	return nil
}

// Helper methods

func (e *Engine) recordPushed(kind models.Kind, localID int64) {
	updated := *e.GetProgress()
	updated.Pushed++
	e.progress.Store(&updated)

	e.emitEvent(Event{
		Type:      EventRecordPushed,
		Timestamp: time.Now(),
		Kind:      kind,
		LocalID:   localID,
		Progress:  &updated,
	})
}

func (e *Engine) rejectRecord(kind models.Kind, localID int64, cause error) {
	e.logger.WithError(cause).WithFields(map[string]interface{}{
		"kind":     kind,
		"local_id": localID,
	}).Warn("Record rejected by server")

	if err := e.store.MarkFailed(kind, localID); err != nil {
		e.logger.WithError(err).Error("Failed to mark record")
	}

	updated := *e.GetProgress()
	updated.Rejected++
	updated.Errors = append(updated.Errors, cause)
	e.progress.Store(&updated)

	e.emitEvent(Event{
		Type:      EventRecordRejected,
		Timestamp: time.Now(),
		Kind:      kind,
		LocalID:   localID,
		Error:     cause,
		Progress:  &updated,
	})
}

func (e *Engine) recordPulled(kind models.Kind, count int) {
	if count == 0 {
		return
	}

	updated := *e.GetProgress()
	updated.Pulled += count
	e.progress.Store(&updated)

	e.emitEvent(Event{
		Type:      EventPulled,
		Timestamp: time.Now(),
		Kind:      kind,
		Progress:  &updated,
	})
}

func (e *Engine) updatePhase(phase string) {
	updated := *e.GetProgress()
	updated.Phase = phase
	e.progress.Store(&updated)
}

func (e *Engine) emitEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.eventsClosed {
		return
	}

	select {
	case e.events <- event:
	default:
		e.logger.Debug("Event channel full, dropping event")
	}
}

func (e *Engine) handleError(err error) error {
	e.logger.WithError(err).Error("Sync cycle failed")

	failed := *e.GetProgress()
	failed.Phase = "failed"
	failed.Errors = append(failed.Errors, err)
	e.progress.Store(&failed)

	e.emitEvent(Event{
		Type:      EventFailed,
		Timestamp: time.Now(),
		Error:     err,
		Progress:  &failed,
	})
	return err
}

// localRef builds the placeholder reference an offline expense uses
// for a category that has no remote ID yet.
func localRef(localID int64) string {
	return "local_" + strconv.FormatInt(localID, 10)
}

func isLocalRef(ref string) bool {
	return strings.HasPrefix(ref, "local_")
}
