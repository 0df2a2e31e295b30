package state

// Store persists pull checkpoints: for each (owner, kind) pair, the
// highest remote updated_at (epoch millis) successfully applied locally.
// The checkpoint is the sole input to incremental pull queries.
type Store interface {
	// Checkpoint returns the stored value, or 0 when none exists.
	Checkpoint(ownerID, kind string) (int64, error)

	// Advance raises the checkpoint. Values at or below the stored one
	// are ignored; checkpoints never move backwards.
	Advance(ownerID, kind string, millis int64) error

	// Reset drops all checkpoints for an owner, forcing a full pull on
	// the next cycle.
	Reset(ownerID string) error

	// LastSyncMillis is the wall clock of the owner's last attempted
	// cycle, for display only.
	LastSyncMillis(ownerID string) (int64, error)
	SetLastSyncMillis(ownerID string, millis int64) error

	// Close releases resources.
	Close() error
}
