package pgxdocstore

import (
	"context"
	"testing"
	"time"

	"github.com/jrazmi/taskdeck/infrastructure/docstore"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// newIdleListener builds a listener without the LISTEN connection so the
// registration and delivery paths can be driven directly.
func newIdleListener(snapshot snapshotFunc) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &listener{
		log:      logger.NewDefault(logger.WithLevel("ERROR")),
		snapshot: snapshot,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		subs:     make(map[int]*registration),
	}
}

func docSet(ids ...string) []docstore.Document {
	docs := make([]docstore.Document, len(ids))
	for i, id := range ids {
		docs[i] = docstore.Document{ID: id, Fields: docstore.Fields{}}
	}
	return docs
}

func receiveSnapshot(t *testing.T, sub *docstore.Subscription) []docstore.Document {
	t.Helper()
	select {
	case docs := <-sub.Snapshots():
		return docs
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func TestInitialSnapshotYieldsToFresherFanout(t *testing.T) {
	l := newIdleListener(func(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
		return docSet("a", "b"), nil
	})

	reg := l.register("tasks", docstore.Filter{})
	defer reg.sub.Detach()

	// A change notification lands while the opening query is still running:
	// the fanout snapshot reaches the subscription first.
	l.fanOut("tasks")

	// The older opening set arrives late and must be dropped, not delivered
	// behind the fresher snapshot.
	l.deliverInitial(reg, docSet("a"))

	got := receiveSnapshot(t, reg.sub)
	if len(got) != 2 {
		t.Fatalf("first snapshot has %d documents, want the 2-document fanout set", len(got))
	}
	select {
	case docs := <-reg.sub.Snapshots():
		t.Fatalf("stale opening set of %d documents delivered after the fanout", len(docs))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitialSnapshotDeliveredWhenNoChangeIntervenes(t *testing.T) {
	l := newIdleListener(func(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
		return docSet("a", "b"), nil
	})

	reg := l.register("tasks", docstore.Filter{})
	defer reg.sub.Detach()

	l.deliverInitial(reg, docSet("a"))
	if got := receiveSnapshot(t, reg.sub); len(got) != 1 {
		t.Fatalf("opening snapshot has %d documents, want 1", len(got))
	}

	// Later changes still flow.
	l.fanOut("tasks")
	if got := receiveSnapshot(t, reg.sub); len(got) != 2 {
		t.Fatalf("fanout snapshot has %d documents, want 2", len(got))
	}
}

func TestFanOutReachesRegistrationBeforeItsOpeningSet(t *testing.T) {
	l := newIdleListener(func(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
		return docSet("a"), nil
	})

	// Registration alone is enough to receive change notifications; the
	// opening query has not delivered yet.
	reg := l.register("tasks", docstore.Filter{})
	defer reg.sub.Detach()

	l.fanOut("tasks")
	if got := receiveSnapshot(t, reg.sub); len(got) != 1 {
		t.Fatalf("fanout snapshot has %d documents, want 1", len(got))
	}
}
