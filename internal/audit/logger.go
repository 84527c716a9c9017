package audit

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	ReferenceID string    `json:"reference_id"`
	ActorID     string    `json:"actor_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	Details     any       `json:"details"`
}

// Logger is a best-effort audit side channel. Events are appended through a
// bounded queue drained by a single goroutine; when the queue is full the
// event is dropped and counted, never blocking the caller. Failure to log
// never affects the financial mutation that triggered it.
type Logger struct {
	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped int64
	mu      sync.Mutex
}

func NewLogger(queueSize int) *Logger {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := &Logger{
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

func (l *Logger) LogReserveAdjustment(referenceID, actorID string, amount int64, description string) {
	l.enqueue(Event{
		Timestamp:   time.Now(),
		EventType:   "RESERVE_ADJUSTMENT",
		ReferenceID: referenceID,
		ActorID:     actorID,
		Amount:      amount,
		Status:      "SUCCESS",
		Details:     map[string]string{"description": description},
	})
}

func (l *Logger) LogSettlement(settlementID, providerRef string, amount int64, status string) {
	l.enqueue(Event{
		Timestamp:   time.Now(),
		EventType:   "SETTLEMENT",
		ReferenceID: settlementID,
		Amount:      amount,
		Status:      status,
		Details:     map[string]string{"provider_ref": providerRef},
	})
}

func (l *Logger) LogError(referenceID, actorID string, err error) {
	l.enqueue(Event{
		Timestamp:   time.Now(),
		EventType:   "ERROR",
		ReferenceID: referenceID,
		ActorID:     actorID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

func (l *Logger) enqueue(event Event) {
	select {
	case l.events <- event:
	case <-l.done:
	default:
		l.mu.Lock()
		l.dropped++
		dropped := l.dropped
		l.mu.Unlock()
		log.Printf("AUDIT: queue full, dropped event %s (total dropped: %d)", event.EventType, dropped)
	}
}

func (l *Logger) drain() {
	for {
		select {
		case event := <-l.events:
			l.write(event)
		case <-l.done:
			// Flush whatever is left before exit.
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}

// Close stops the drain goroutine after flushing queued events.
func (l *Logger) Close() {
	l.once.Do(func() { close(l.done) })
}
