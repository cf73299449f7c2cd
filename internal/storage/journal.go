package storage

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/registry"
)

// EventWriter persists journal events.
type EventWriter interface {
	InsertEvent(e models.Event) (int64, error)
}

// Journal records member lifecycle events asynchronously. Registry callbacks
// only enqueue; a full queue drops the event instead of stalling registration.
// Events of one member always go to the same worker, so they are written in
// the order they happened. Ordering across members is not preserved.
type Journal struct {
	store  EventWriter
	queues []chan models.Event
	wg     sync.WaitGroup
	once   sync.Once
	closed bool
	mu     sync.RWMutex
}

// NewJournal creates a stopped journal writing to store. queueSize is split
// evenly between the workers.
func NewJournal(store EventWriter, queueSize, workers int) *Journal {
	if workers < 1 {
		workers = 1
	}
	perWorker := queueSize / workers
	if perWorker < 1 {
		perWorker = 1
	}

	j := &Journal{
		store:  store,
		queues: make([]chan models.Event, workers),
	}
	for i := range j.queues {
		j.queues[i] = make(chan models.Event, perWorker)
	}

	return j
}

// Start launches the writer goroutines.
func (j *Journal) Start() {
	j.once.Do(func() {
		for _, q := range j.queues {
			j.wg.Add(1)
			go j.worker(q)
		}
	})
}

// Stop closes the queues and waits for pending events to be written.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		for _, q := range j.queues {
			close(q)
		}
	}
	j.mu.Unlock()

	j.wg.Wait()
}

// MemberRegistered journals newly created members. Refreshes of existing ones are not recorded.
func (j *Journal) MemberRegistered(rec registry.ServerRecord, created bool) {
	if !created {
		return
	}
	j.enqueue(eventFromRecord(models.EventRegistered, &rec, rec.LastHeartbeat))
}

// MemberEvicted journals evictions and deregistrations at the time the registry removed the member.
func (j *Journal) MemberEvicted(rec registry.ServerRecord, reason registry.EvictReason, at time.Time) {
	kind := models.EventEvicted
	if reason == registry.ReasonDeregistered {
		kind = models.EventDeregistered
	}
	j.enqueue(eventFromRecord(kind, &rec, at))
}

// queueFor picks the worker queue owning the member (category, id).
func (j *Journal) queueFor(category models.Category, id int) chan models.Event {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(category))
	binary.LittleEndian.PutUint64(buf[4:], uint64(id))

	return j.queues[xxhash.Sum64(buf[:])%uint64(len(j.queues))]
}

func (j *Journal) enqueue(e models.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return
	}

	select {
	case j.queueFor(e.Category, e.ServerID) <- e:
	default:
		log.Warn().
			Str("kind", string(e.Kind)).
			Str("category", e.Category.String()).
			Int("id", e.ServerID).
			Msg("Journal queue full, event dropped")
	}
}

func (j *Journal) worker(queue <-chan models.Event) {
	defer j.wg.Done()

	for e := range queue {
		if _, err := j.store.InsertEvent(e); err != nil {
			log.Error().Err(err).
				Str("kind", string(e.Kind)).
				Int("id", e.ServerID).
				Msg("Failed to write journal event")
		}
	}
}

func eventFromRecord(kind models.EventKind, rec *registry.ServerRecord, at time.Time) models.Event {
	return models.Event{
		At:       at,
		Kind:     kind,
		Category: rec.Category,
		ServerID: rec.ID,
		Name:     rec.Name,
		Address:  rec.Endpoint(),
		Country:  rec.CountryCode,
		Online:   rec.Online,
		State:    rec.State,
	}
}
