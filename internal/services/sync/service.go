package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
	"github.com/mbarrios/gastosync/internal/remote"
	"github.com/mbarrios/gastosync/internal/state"
	"github.com/mbarrios/gastosync/internal/store"
)

// Service provides high-level sync operations for one signed-in owner.
type Service struct {
	engine  *Engine
	store   store.Store
	state   state.Store
	client  remote.Client
	logger  *events.Logger
	ownerID string

	// lastError carries the most recent cycle failure; cleared (set
	// to nil) by the next successful cycle.
	lastError *events.Signal[error]
}

// NewService creates a sync service.
func NewService(
	recordStore store.Store,
	checkpoints state.Store,
	client remote.Client,
	ownerID string,
	logger *events.Logger,
) *Service {
	return &Service{
		engine:    NewEngine(recordStore, checkpoints, client, logger),
		store:     recordStore,
		state:     checkpoints,
		client:    client,
		ownerID:   ownerID,
		logger:    logger.WithField("service", "sync"),
		lastError: events.NewSignal[error](),
	}
}

// SyncNow runs one cycle immediately.
func (s *Service) SyncNow(ctx context.Context, opts Options) error {
	err := s.engine.Sync(ctx, s.ownerID, opts)
	if errors.Is(err, models.ErrSyncInProgress) || errors.Is(err, ErrEngineClosed) {
		return err
	}
	s.lastError.Set(err)
	return err
}

// PendingCount reports how many records of a kind await push.
func (s *Service) PendingCount(kind models.Kind) (int, error) {
	return s.store.PendingCount(s.ownerID, kind)
}

// LastSyncMillis is the wall clock of the last attempted cycle.
func (s *Service) LastSyncMillis() (int64, error) {
	return s.state.LastSyncMillis(s.ownerID)
}

// LastError exposes the most recent cycle outcome as a signal; a nil
// value means the last cycle succeeded.
func (s *Service) LastError() *events.Signal[error] {
	return s.lastError
}

// GetProgress returns the running cycle's progress.
func (s *Service) GetProgress() *Progress {
	return s.engine.GetProgress()
}

// Events returns the cycle event channel.
func (s *Service) Events() <-chan Event {
	return s.engine.Events()
}

// Cancel stops an ongoing cycle.
func (s *Service) Cancel() {
	s.engine.Cancel()
}

// Close cancels any running cycle and closes the event channel.
func (s *Service) Close() {
	s.engine.Close()
}

// WatchRemoteUser subscribes to server-side user document changes and
// applies them locally as they arrive. Billing updates the plan fields
// out of band; this keeps the device current between cycles. Blocks
// until ctx is cancelled or the stream drops.
func (s *Service) WatchRemoteUser(ctx context.Context) error {
	stream, err := s.client.WatchUser(ctx, s.ownerID)
	if err != nil {
		return fmt.Errorf("open user watch: %w", err)
	}

	s.logger.Info("Watching remote user document")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return fmt.Errorf("user watch stream closed")
			}
			if err := s.applyUserEvent(ev); err != nil {
				s.logger.WithError(err).Error("Failed to apply user event")
			}
		}
	}
}

func (s *Service) applyUserEvent(ev remote.UserEvent) error {
	user := &models.User{
		OwnerID:       s.ownerID,
		Name:          ev.Doc.Name,
		Email:         ev.Doc.Email,
		Role:          ev.Doc.Role,
		PlanID:        ev.Doc.PlanID,
		PlanExpiresAt: ev.Doc.PlanExpiresAt,
		Timezone:      ev.Doc.Timezone,
		IsActive:      ev.Doc.IsActive,
		UpdatedAt:     ev.Doc.UpdatedAt,
		SyncState:     models.StateSynced,
	}

	s.logger.WithFields(map[string]interface{}{
		"plan_id":    user.PlanID,
		"updated_at": user.UpdatedAt,
	}).Debug("Applying watched user update")

	return s.store.UpsertUserFromRemote(user)
}
