package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"product.created", false},
		{"product.updated", false},
		{"product.deleted", false},
		{"product.bulk_deleted", false},
		{"csv.completed", false},
		{"product.archived", true},
		{"", true},
		{"PRODUCT.CREATED", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got1, got2 atomic.Int32
	bus.Subscribe(HandlerFunc(func(evt Event) { got1.Add(1) }))
	bus.Subscribe(HandlerFunc(func(evt Event) { got2.Add(1) }))

	bus.Publish(New(TypeProductCreated, map[string]any{"id": 1}))
	bus.Wait()

	if got1.Load() != 1 || got2.Load() != 1 {
		t.Errorf("handler calls = %d, %d, want 1, 1", got1.Load(), got2.Load())
	}
}

func TestBus_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()

	release := make(chan struct{})
	bus.Subscribe(HandlerFunc(func(evt Event) { <-release }))

	done := make(chan struct{})
	go func() {
		bus.Publish(New(TypeProductDeleted, nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	bus.Wait()
}

func TestBus_PanickingSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var delivered []Type
	bus.Subscribe(HandlerFunc(func(evt Event) { panic("boom") }))
	bus.Subscribe(HandlerFunc(func(evt Event) {
		mu.Lock()
		delivered = append(delivered, evt.Type)
		mu.Unlock()
	}))

	bus.Publish(New(TypeCSVCompleted, map[string]any{"job_id": "j1"}))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != TypeCSVCompleted {
		t.Errorf("delivered = %v, want [csv.completed]", delivered)
	}
}

func TestBus_SubscribeDuringPublishIsSafe(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(HandlerFunc(func(evt Event) {}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(New(TypeProductUpdated, nil))
		}()
		go func() {
			defer wg.Done()
			bus.Subscribe(HandlerFunc(func(evt Event) {}))
		}()
	}
	wg.Wait()
	bus.Wait()
}
