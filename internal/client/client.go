package client

import (
	"context"
	"fmt"

	"github.com/mbarrios/gastosync/internal/config"
	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/netmon"
	"github.com/mbarrios/gastosync/internal/remote"
	"github.com/mbarrios/gastosync/internal/scheduler"
	"github.com/mbarrios/gastosync/internal/services/sync"
	"github.com/mbarrios/gastosync/internal/state"
	"github.com/mbarrios/gastosync/internal/store"
)

// Client wires the sync stack for one signed-in owner: local stores,
// remote client, engine, connectivity monitor, and scheduler.
type Client struct {
	Sync    *sync.Service
	Store   store.Store
	Monitor *netmon.Monitor

	config    *config.Config
	logger    *events.Logger
	remote    remote.Client
	state     state.Store
	scheduler *scheduler.Scheduler
	ownerID   string
}

// New builds a client from config. The owner ID scopes every local and
// remote operation.
func New(cfg *config.Config, ownerID string, logger *events.Logger) (*Client, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	recordStore, err := store.NewSQLiteStore(cfg.Storage.RecordsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	checkpoints, err := state.NewSQLiteStore(cfg.Storage.CheckpointsFile, logger)
	if err != nil {
		recordStore.Close()
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	remoteClient := remote.NewHTTPClient(&cfg.API, logger)

	syncService := sync.NewService(recordStore, checkpoints, remoteClient, ownerID, logger)

	monitor := netmon.NewMonitor(&cfg.Network, logger)

	sched := scheduler.New(
		func(ctx context.Context) error {
			return syncService.SyncNow(ctx, sync.Options{})
		},
		scheduler.Config{
			Interval:    cfg.Sync.Interval,
			MaxAttempts: cfg.Sync.RetryAttempts,
			RetryDelay:  cfg.Sync.RetryDelay,
		},
		logger,
	)

	return &Client{
		Sync:      syncService,
		Store:     recordStore,
		Monitor:   monitor,
		config:    cfg,
		logger:    logger,
		remote:    remoteClient,
		state:     checkpoints,
		scheduler: sched,
		ownerID:   ownerID,
	}, nil
}

// OwnerID returns the signed-in owner.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// Start launches the background pieces: connectivity probing, the
// periodic scheduler, and the reconnect trigger that enqueues one
// cycle whenever validated internet comes back.
func (c *Client) Start(ctx context.Context) {
	c.Monitor.Start(ctx)
	c.scheduler.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-c.Monitor.Reconnects():
				if !ok {
					return
				}
				c.logger.Info("Connectivity restored, scheduling sync")
				c.scheduler.Enqueue()
			}
		}
	}()
}

// TriggerSync requests one cycle as soon as the worker is free.
func (c *Client) TriggerSync() {
	c.scheduler.Enqueue()
}

// Close stops background work and releases every resource.
func (c *Client) Close() error {
	c.scheduler.Stop()
	c.Monitor.Stop()
	c.Sync.Close()

	var firstErr error
	if err := c.remote.Close(); err != nil {
		firstErr = err
	}
	if err := c.state.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
