package purchase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PanickingObserverIsolated(t *testing.T) {
	n := newNotifier(4, &NoopLogger{})

	n.subscribe(func(Notification) { panic("boom") })
	obs := &recordingObserver{}
	n.subscribe(obs.observe)

	n.enqueue(Notification{Kind: ProductPurchased, ProductIdentifier: "pro"})
	n.close()

	assert.Len(t, obs.all(), 1)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := newNotifier(4, &NoopLogger{})
	obs := &recordingObserver{}
	cancel := n.subscribe(obs.observe)
	cancel()
	cancel()

	n.enqueue(Notification{Kind: ProductPurchased, ProductIdentifier: "pro"})
	n.close()

	assert.Empty(t, obs.all())
}

func TestNotifier_EnqueueAfterCloseDropped(t *testing.T) {
	n := newNotifier(4, &NoopLogger{})
	n.close()
	n.close()

	assert.False(t, n.enqueue(Notification{Kind: ProductRevoked, ProductIdentifier: "pro"}))
}

func TestNotifier_NilObserver(t *testing.T) {
	n := newNotifier(1, &NoopLogger{})
	defer n.close()

	cancel := n.subscribe(nil)
	assert.NotPanics(t, cancel)
}

func TestNotifier_ObserverCanSubscribeDuringDelivery(t *testing.T) {
	n := newNotifier(4, &NoopLogger{})
	late := &recordingObserver{}

	n.subscribe(func(Notification) {
		n.subscribe(late.observe)
	})

	n.enqueue(Notification{Kind: ProductPurchased, ProductIdentifier: "a"})
	n.enqueue(Notification{Kind: ProductPurchased, ProductIdentifier: "b"})
	n.close()

	assert.NotEmpty(t, late.all())
}

func TestNotifier_EnqueueDoesNotWaitForObservers(t *testing.T) {
	n := newNotifier(1, &NoopLogger{})
	release := make(chan struct{})
	obs := &recordingObserver{}
	n.subscribe(func(Notification) { <-release })
	n.subscribe(obs.observe)

	// the dispatcher is parked in the first observer well past the initial capacity
	for i := 0; i < 32; i++ {
		require.True(t, n.enqueue(Notification{Kind: ProductPurchased, ProductIdentifier: fmt.Sprintf("p%d", i)}))
	}
	close(release)
	n.close()

	notes := obs.all()
	require.Len(t, notes, 32)
	for i, note := range notes {
		assert.Equal(t, fmt.Sprintf("p%d", i), note.ProductIdentifier)
	}
}
