package orchestrator

import (
	"context"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/store"
)

// Notifier hands an analysed, relevant article off for fan-out. The core's
// contract ends at a durable queue row; push delivery (APNs) is an
// external collaborator (spec §1 Non-goals) reached only through this
// seam.
type Notifier interface {
	Notify(ctx context.Context, queueName core.QueueName, item core.NotificationQueueItem) error
}

// StoreNotifier is the default Notifier: it enqueues into the relational
// store's notification tables and nothing else.
type StoreNotifier struct {
	Store *store.Store
}

// Notify enqueues item, satisfying the Notifier interface.
func (n StoreNotifier) Notify(ctx context.Context, queueName core.QueueName, item core.NotificationQueueItem) error {
	return n.Store.EnqueueNotification(queueName, item)
}
