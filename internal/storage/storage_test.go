package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/registry"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestRepository_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	repo, err := New(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = New(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestRepository_InsertAndRecent(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		cat := models.CategoryGame
		if i%2 == 0 {
			cat = models.CategoryGate
		}
		seq, err := repo.InsertEvent(models.Event{
			At:       base.Add(time.Duration(i) * time.Minute),
			Kind:     models.EventRegistered,
			Category: cat,
			ServerID: i,
			Name:     "srv",
			Address:  "203.0.113.1:7000",
			Online:   i * 10,
			State:    -1,
		})
		require.NoError(t, err)
		require.EqualValues(t, i+1, seq)
	}

	all, err := repo.RecentEvents(models.CategoryNone, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, 4, all[0].ServerID)
	require.True(t, all[0].At.Equal(base.Add(4*time.Minute)))

	gates, err := repo.RecentEvents(models.CategoryGate, 2)
	require.NoError(t, err)
	require.Len(t, gates, 2)
	require.Equal(t, models.CategoryGate, gates[0].Category)
	require.Equal(t, 4, gates[0].ServerID)
	require.Equal(t, 2, gates[1].ServerID)
	require.Equal(t, models.EventRegistered, gates[1].Kind)
	require.Equal(t, -1, gates[1].State)
}

func TestRepository_PruneEvents(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := repo.InsertEvent(models.Event{At: base.Add(time.Duration(i) * time.Hour), Kind: models.EventEvicted, Category: models.CategoryGame, ServerID: i})
		require.NoError(t, err)
	}

	n, err := repo.PruneEvents(base.Add(2 * time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	left, err := repo.RecentEvents(models.CategoryNone, 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
}

type memoryWriter struct {
	events []models.Event
	mu     sync.Mutex
}

func (m *memoryWriter) InsertEvent(e models.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return int64(len(m.events)), nil
}

func TestJournal_RecordsLifecycle(t *testing.T) {
	w := &memoryWriter{}
	j := NewJournal(w, 16, 1)
	j.Start()

	rec := registry.ServerRecord{Category: models.CategoryGate, ID: 9, Name: "gate-9", PublicIP: "203.0.113.9", Port: 7009}
	j.MemberRegistered(rec, true)
	j.MemberRegistered(rec, false)
	evictedAt := time.Date(2024, 5, 1, 12, 0, 7, 0, time.UTC)
	j.MemberEvicted(rec, registry.ReasonExpired, evictedAt)
	j.MemberEvicted(rec, registry.ReasonDeregistered, evictedAt.Add(time.Second))

	j.Stop()
	j.Stop()

	require.Len(t, w.events, 3)
	require.Equal(t, models.EventRegistered, w.events[0].Kind)
	require.Equal(t, "203.0.113.9:7009", w.events[0].Address)
	require.Equal(t, models.EventEvicted, w.events[1].Kind)
	require.Equal(t, evictedAt, w.events[1].At)
	require.Equal(t, models.EventDeregistered, w.events[2].Kind)
	require.Equal(t, evictedAt.Add(time.Second), w.events[2].At)

	// enqueue after stop is ignored rather than panicking on a closed channel
	j.MemberRegistered(rec, true)
}

func TestJournal_DropsWhenFull(t *testing.T) {
	w := &memoryWriter{}
	j := NewJournal(w, 1, 1)

	rec := registry.ServerRecord{Category: models.CategoryGame, ID: 1}
	j.MemberRegistered(rec, true)
	j.MemberRegistered(rec, true)
	j.MemberRegistered(rec, true)

	j.Start()
	j.Stop()

	require.Len(t, w.events, 1)
}

func TestJournal_KeepsPerMemberOrder(t *testing.T) {
	w := &memoryWriter{}
	j := NewJournal(w, 4096, 4)
	j.Start()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for id := 1; id <= 200; id++ {
		rec := registry.ServerRecord{Category: models.CategoryGame, ID: id, LastHeartbeat: at}
		j.MemberRegistered(rec, true)
		j.MemberEvicted(rec, registry.ReasonExpired, at.Add(time.Minute))
	}
	j.Stop()

	require.Len(t, w.events, 400)

	seen := make(map[int]models.EventKind)
	for _, e := range w.events {
		if e.Kind == models.EventEvicted {
			require.Equal(t, models.EventRegistered, seen[e.ServerID], "id %d evicted before registered", e.ServerID)
		}
		seen[e.ServerID] = e.Kind
	}
}

func TestJournal_WithRegistry(t *testing.T) {
	repo := openTestRepo(t)
	j := NewJournal(repo, 64, 2)
	j.Start()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := registry.New(
		registry.Options{LivenessTimeout: time.Second, SweepInterval: time.Second},
		registry.WithListener(j),
		registry.WithClock(func() time.Time { return start }),
	)
	reg.Register(models.ServerDescriptor{Category: models.CategoryGame, ID: 7, Name: "shard-7", PublicIP: "198.51.100.7", Port: 9000})
	reg.Heartbeat(models.ServerDescriptor{Category: models.CategoryGame, ID: 7, Name: "shard-7", PublicIP: "198.51.100.7", Port: 9000})
	sweptAt := start.Add(time.Minute)
	reg.Sweeper().Sweep(sweptAt)
	reg.Close()
	j.Stop()

	events, err := repo.RecentEvents(models.CategoryGame, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.EventEvicted, events[0].Kind)
	require.True(t, sweptAt.Equal(events[0].At), "evicted at %s", events[0].At)
	require.Equal(t, models.EventRegistered, events[1].Kind)
	require.True(t, start.Equal(events[1].At), "registered at %s", events[1].At)
	require.Equal(t, "shard-7", events[1].Name)
	require.Greater(t, events[0].Seq, events[1].Seq)
}
