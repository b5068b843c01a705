package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizduel/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a handler should only receive the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("match.found"),
						eventWithName("score.updated"),
					},
					subscribers: []subscriber{
						{
							name:        "transport",
							subscribeTo: []string{"match.found"},
						},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []event.Event{eventWithName("match.found")}, out.received["transport"])
			},
		},

		"every subscriber of an event should receive it": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("players.matched"),
					},
					subscribers: []subscriber{
						{name: "game", subscribeTo: []string{"players.matched"}},
						{name: "metrics", subscribeTo: []string{"players.matched"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []event.Event{eventWithName("players.matched")}, out.received["game"])
				assert.Equal(t, []event.Event{eventWithName("players.matched")}, out.received["metrics"])
			},
		},

		"one subscription for several names receives all of them": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("question.issued"),
						eventWithName("score.updated"),
					},
					subscribers: []subscriber{
						{
							name:        "transport",
							subscribeTo: []string{"question.issued", "score.updated"},
						},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []event.Event{
					eventWithName("question.issued"),
					eventWithName("score.updated"),
				}, out.received["transport"])
			},
		},

		"nobody subscribed: the event is dropped": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.ended"),
					},
					subscribers: []subscriber{
						{name: "transport", subscribeTo: []string{"match.found"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Empty(t, out.received["transport"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			in := tt.arrange()

			eb := event.NewBus()

			var mu sync.Mutex
			received := make(map[string][]event.Event)
			for _, s := range in.subscribers {
				s := s
				eb.Subscribe(func(ctx context.Context, e event.Event) error {
					mu.Lock()
					received[s.name] = append(received[s.name], e)
					mu.Unlock()
					return nil
				}, s.subscribeTo...)
			}

			for _, e := range in.published {
				eb.Publish(context.Background(), e)
			}
			eb.Stop()

			tt.assert(t, outputs{received: received})
		})
	}
}

// A subscription must see events in the order they were published, even
// across different event names. Outbound notifications rely on this: an
// ice candidate must never overtake the offer it belongs to, and a score
// update must never be overtaken by the next round's question.
func TestBus_DeliveryOrderPerSubscription(t *testing.T) {
	const n = 2000

	eb := event.NewBus()

	var got []event.Event
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		got = append(got, e)
		return nil
	}, "signal.forwarded", "question.issued")

	var want []event.Event
	for i := 0; i < n; i++ {
		name := "signal.forwarded"
		if i%3 == 0 {
			name = "question.issued"
		}
		e := numberedEvent{name: name, seq: i}
		want = append(want, e)
		eb.Publish(context.Background(), e)
	}
	eb.Stop()

	assert.Equal(t, want, got)
}

func TestBus_HandlerFailureIsIsolated(t *testing.T) {
	eb := event.NewBus()

	var mu sync.Mutex
	var healthy []event.Event

	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		panic("boom")
	}, "match.found")
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		return errors.New("handler failed")
	}, "match.found")
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		healthy = append(healthy, e)
		mu.Unlock()
		return nil
	}, "match.found")

	eb.Publish(context.Background(), eventWithName("match.found"))
	eb.Publish(context.Background(), eventWithName("match.found"))
	eb.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, healthy, 2, "a panicking or failing handler must not affect the others")
}

type subscriber struct {
	name        string
	subscribeTo []string
}

type eventWithName string

func (e eventWithName) Name() string { return string(e) }

type numberedEvent struct {
	name string
	seq  int
}

func (e numberedEvent) Name() string { return e.name }

func (e numberedEvent) String() string { return fmt.Sprintf("%s#%d", e.name, e.seq) }
