package pgxdocstore

import (
	"context"
	"sync"
	"time"

	"github.com/jrazmi/taskdeck/infrastructure/docstore"
	"github.com/jrazmi/taskdeck/infrastructure/postgresdb"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// notifyChannel is raised by the documents trigger with the changed
// collection name as payload.
const notifyChannel = "taskdeck_documents"

// snapshotFunc re-queries the current matching set for a subscription.
type snapshotFunc func(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error)

type registration struct {
	collection string
	filter     docstore.Filter
	sub        *docstore.Subscription

	// delivered flips once the first snapshot reaches the subscription,
	// guarded by the listener mutex. It lets a change notification that
	// lands during the initial query win over the older initial set.
	delivered bool
}

// listener owns a dedicated connection that LISTENs for document change
// notifications and fans whole snapshots out to registered subscriptions.
type listener struct {
	log      *logger.Logger
	pool     *postgresdb.Pool
	snapshot snapshotFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	subs   map[int]*registration
	nextID int
}

func newListener(ctx context.Context, log *logger.Logger, pool *postgresdb.Pool, snapshot snapshotFunc) *listener {
	ctx, cancel := context.WithCancel(ctx)
	l := &listener{
		log:      log,
		pool:     pool,
		snapshot: snapshot,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		subs:     make(map[int]*registration),
	}

	go l.run()
	return l
}

func (l *listener) register(collection string, filter docstore.Filter) *registration {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++

	sub := docstore.NewSubscription(8, func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	})

	reg := &registration{
		collection: collection,
		filter:     filter,
		sub:        sub,
	}
	l.subs[id] = reg
	return reg
}

// deliverInitial hands the registration its opening snapshot unless a change
// notification already delivered a fresher one while the caller was querying.
func (l *listener) deliverInitial(reg *registration, docs []docstore.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if reg.delivered {
		return
	}
	reg.delivered = true
	reg.sub.Deliver(docs)
}

func (l *listener) stop() {
	l.cancel()
	<-l.done

	l.mu.Lock()
	regs := make([]*registration, 0, len(l.subs))
	for _, reg := range l.subs {
		regs = append(regs, reg)
	}
	l.mu.Unlock()

	for _, reg := range regs {
		reg.sub.Detach()
	}
}

// run keeps a LISTEN connection alive for the lifetime of the store,
// reconnecting with backoff when the connection drops.
func (l *listener) run() {
	defer close(l.done)

	const retryDelay = 2 * time.Second

	for {
		if l.ctx.Err() != nil {
			return
		}

		if err := l.listen(); err != nil && l.ctx.Err() == nil {
			l.log.ErrorContext(l.ctx, "document listener disconnected", "error", err)
			l.broadcastError(storeError(err))

			select {
			case <-l.ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}
}

func (l *listener) listen() error {
	conn, err := l.pool.Acquire(l.ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(l.ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(l.ctx)
		if err != nil {
			return err
		}
		l.fanOut(notification.Payload)
	}
}

// fanOut re-queries and delivers a fresh snapshot to every subscription on
// the changed collection.
func (l *listener) fanOut(collection string) {
	l.mu.Lock()
	regs := make([]*registration, 0, len(l.subs))
	for _, reg := range l.subs {
		if reg.collection == collection {
			regs = append(regs, reg)
		}
	}
	l.mu.Unlock()

	for _, reg := range regs {
		docs, err := l.snapshot(l.ctx, reg.collection, reg.filter)
		if err != nil {
			reg.sub.DeliverError(err)
			continue
		}

		// Delivery and the delivered flag move together under the mutex so
		// a pending initial snapshot cannot land after this fresher one.
		l.mu.Lock()
		reg.delivered = true
		reg.sub.Deliver(docs)
		l.mu.Unlock()
	}
}

func (l *listener) broadcastError(err error) {
	l.mu.Lock()
	regs := make([]*registration, 0, len(l.subs))
	for _, reg := range l.subs {
		regs = append(regs, reg)
	}
	l.mu.Unlock()

	for _, reg := range regs {
		reg.sub.DeliverError(err)
	}
}
