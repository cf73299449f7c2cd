package registry

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/warden/internal/models"
)

const stripeCount = 16

type stripe struct {
	records map[key]*ServerRecord
	mu      sync.RWMutex
}

// MembershipTable maps (category, id) to the member record. It is the single
// source of truth; every mutation of a gateway is mirrored into the ranker
// while the key's stripe lock is held, so the ranker never lags behind the
// table for a given id.
type MembershipTable struct {
	ranker  *GatewayRanker
	now     func() time.Time
	stripes [stripeCount]stripe
}

// NewMembershipTable creates a table mirroring gateways into ranker.
// A nil ranker disables gateway ranking, a nil clock means time.Now.
func NewMembershipTable(ranker *GatewayRanker, now func() time.Time) *MembershipTable {
	if now == nil {
		now = time.Now
	}

	t := &MembershipTable{ranker: ranker, now: now}
	for i := range t.stripes {
		t.stripes[i].records = make(map[key]*ServerRecord)
	}

	return t
}

func (t *MembershipTable) stripeFor(k key) *stripe {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(k.category))
	binary.LittleEndian.PutUint64(buf[4:], uint64(k.id))

	return &t.stripes[xxhash.Sum64(buf[:])%stripeCount]
}

// Upsert stores rec under (category, rec.ID). An existing record is overwritten
// field by field in place; a new one is inserted. LastHeartbeat is stamped with
// the current time and never moves backwards. It returns a copy of the stored
// record and whether it was created.
func (t *MembershipTable) Upsert(category models.Category, rec ServerRecord) (ServerRecord, bool) {
	rec.Category = category
	k := rec.key()
	s := t.stripeFor(k)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[k]
	if !ok {
		stored := rec
		stored.FirstSeen = now
		stored.LastHeartbeat = now
		s.records[k] = &stored
		t.mirror(&stored)
		return stored, true
	}

	cur.overwrite(&rec)
	if now.After(cur.LastHeartbeat) {
		cur.LastHeartbeat = now
	}
	t.mirror(cur)

	return *cur, false
}

// Get returns a copy of the record for (category, id).
func (t *MembershipTable) Get(category models.Category, id int) (ServerRecord, bool) {
	k := key{category: category, id: id}
	s := t.stripeFor(k)

	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.records[k]
	if !ok {
		return ServerRecord{}, false
	}

	return *cur, true
}

// ListByCategory returns copies of all records in category, in no particular order.
func (t *MembershipTable) ListByCategory(category models.Category) []ServerRecord {
	var out []ServerRecord
	t.each(func(r *ServerRecord) {
		if r.Category == category {
			out = append(out, *r)
		}
	})

	return out
}

// Snapshot returns copies of every record.
func (t *MembershipTable) Snapshot() []ServerRecord {
	out := make([]ServerRecord, 0, t.Len())
	t.each(func(r *ServerRecord) {
		out = append(out, *r)
	})

	return out
}

// Len returns the total number of records.
func (t *MembershipTable) Len() int {
	n := 0
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}

	return n
}

// Counts returns the number of records per category.
func (t *MembershipTable) Counts() map[models.Category]int {
	counts := make(map[models.Category]int)
	t.each(func(r *ServerRecord) {
		counts[r.Category]++
	})

	return counts
}

// Evict removes the record for (category, id), returning what was removed.
func (t *MembershipTable) Evict(category models.Category, id int) (ServerRecord, bool) {
	return t.evictIf(key{category: category, id: id}, nil)
}

// EvictStale removes the record only if its last heartbeat is still before cutoff.
// A member that heartbeated after the caller decided it was stale survives.
func (t *MembershipTable) EvictStale(category models.Category, id int, cutoff time.Time) (ServerRecord, bool) {
	return t.evictIf(key{category: category, id: id}, func(r *ServerRecord) bool {
		return r.LastHeartbeat.Before(cutoff)
	})
}

func (t *MembershipTable) evictIf(k key, cond func(*ServerRecord) bool) (ServerRecord, bool) {
	s := t.stripeFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[k]
	if !ok || (cond != nil && !cond(cur)) {
		return ServerRecord{}, false
	}

	delete(s.records, k)
	if k.category == models.CategoryGate && t.ranker != nil {
		t.ranker.Remove(k.id)
	}

	return *cur, true
}

// mirror must be called with the record's stripe lock held.
func (t *MembershipTable) mirror(r *ServerRecord) {
	if r.Category == models.CategoryGate && t.ranker != nil {
		t.ranker.Put(r)
	}
}

// each visits records one stripe at a time under that stripe's read lock.
// Records from different stripes may reflect different points in time.
func (t *MembershipTable) each(fn func(*ServerRecord)) {
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.RLock()
		for _, r := range s.records {
			fn(r)
		}
		s.mu.RUnlock()
	}
}
