package booking

import (
	"context"
	"fmt"
)

const isolationLevel = "READ COMMITTED"

// inTransaction runs fn inside a storage transaction. It rolls back when fn fails or panics
// and commits otherwise; a failed commit is returned to the caller.
func (m *Manager) inTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctx, err = m.storage.BeginTransaction(ctx, isolationLevel)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := m.storage.RollbackTransaction(ctx); rbErr != nil {
				m.l.LogErrorf("Could not rollback transaction after panic %v: %v", p, rbErr)
			}

			m.l.LogInfo("Transaction has been rolled back after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := m.storage.RollbackTransaction(ctx); rbErr != nil {
				m.l.LogErrorf("Could not rollback transaction after error %v: %v", err, rbErr)
			}

			m.l.LogDebugf("Transaction has been rolled back after error: %v", err)

			return
		}

		if err = m.storage.CommitTransaction(ctx); err != nil {
			m.l.LogErrorf("Could not commit transaction, err %v", err)

			err = fmt.Errorf("commit transaction: %w", err)

			return
		}

		m.l.LogDebugf("Transaction has been committed")
	}()

	return fn(ctx)
}

func (m *Manager) nextID(ctx context.Context) (string, error) {
	id, err := m.idGenerator.GetID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNextID, err)
	}

	return id, nil
}

// publish hands a committed event to the publisher. The event is already stored, so a
// failure here is only logged.
func (m *Manager) publish(ctx context.Context, event *Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, event); err != nil {
		m.l.LogWarnf("Could not publish event %s (%s) of booking %s: %v", event.ID, event.Type, event.BookingID, err)
	}
}
