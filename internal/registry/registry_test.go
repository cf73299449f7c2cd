package registry

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/warden/internal/models"
)

type recordingListener struct {
	registered []ServerRecord
	created    []bool
	evicted    []ServerRecord
	reasons    []EvictReason
	evictedAt  []time.Time
	mu         sync.Mutex
}

func (l *recordingListener) MemberRegistered(rec ServerRecord, created bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered = append(l.registered, rec)
	l.created = append(l.created, created)
}

func (l *recordingListener) MemberEvicted(rec ServerRecord, reason EvictReason, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evicted = append(l.evicted, rec)
	l.reasons = append(l.reasons, reason)
	l.evictedAt = append(l.evictedAt, at)
}

type staticGeo map[string]string

func (g staticGeo) GetCountryCode(ip string) string {
	return g[ip]
}

func newTestRegistry(t *testing.T, options ...Option) (*Registry, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	r := New(testOptions(), append([]Option{WithClock(clock.Now)}, options...)...)
	t.Cleanup(r.Close)

	return r, clock
}

func gateDesc(id, online, state int) models.ServerDescriptor {
	return models.ServerDescriptor{
		Category: models.CategoryGate,
		ID:       id,
		Name:     "gate",
		IP:       "192.168.0.1",
		PublicIP: "203.0.113.1",
		Port:     7000 + id,
		Online:   online,
		State:    state,
	}
}

func TestRegistry_Uniqueness(t *testing.T) {
	r, clock := newTestRegistry(t)

	for i := 0; i < 5; i++ {
		d := models.ServerDescriptor{Category: models.CategoryGame, ID: 7, Name: "shard", Online: i, Content: "v" + string(rune('a'+i))}
		if i%2 == 0 {
			require.Equal(t, models.StatusOK, r.Register(d))
		} else {
			require.Equal(t, models.StatusOK, r.Heartbeat(d))
		}
		clock.Advance(time.Second)
	}

	list, err := r.ListByCategory(models.CategoryGame)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 4, list[0].Online)
	require.Equal(t, "ve", list[0].Content)
	require.Equal(t, clock.Now().Add(-time.Second), list[0].LastHeartbeat)
}

func TestRegistry_HeartbeatActsAsRegister(t *testing.T) {
	a, _ := newTestRegistry(t)
	b, _ := newTestRegistry(t)

	d := models.ServerDescriptor{
		Category:     models.CategoryHall,
		ID:           3,
		Name:         "hall-3",
		IP:           "10.1.1.3",
		PublicIP:     "198.51.100.3",
		Port:         8000,
		HTTPPort:     8080,
		GamePort:     9000,
		Online:       12,
		State:        1,
		BelongID:     2,
		Content:      `{"zone":"eu"}`,
		MaxUserCount: 3000,
		OpenTime:     1700000000,
		MaintainTime: 1700003600,
		Version:      "1.4.2",
	}

	require.Equal(t, models.StatusOK, a.Register(d))
	require.Equal(t, models.StatusOK, b.Heartbeat(d))

	ra, ok := a.Get(models.CategoryHall, 3)
	require.True(t, ok)
	rb, ok := b.Get(models.CategoryHall, 3)
	require.True(t, ok)
	require.Equal(t, ra, rb)
	require.Equal(t, d.Version, ra.Descriptor().Version)
}

func TestRegistry_GatewayDedup(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(gateDesc(1, 50, 0))
	d := gateDesc(1, 20, 0)
	d.PublicIP = "203.0.113.99"
	r.Register(d)

	gates := r.Gateways()
	require.Len(t, gates, 1)
	require.Equal(t, 20, gates[0].Online)
	require.Equal(t, "203.0.113.99:7001", r.RoutableGatewayList())
}

func TestRegistry_RankingOrder(t *testing.T) {
	r, _ := newTestRegistry(t)

	loads := []int{70, 5, 33, 5, 90, 12, 0}
	for i, online := range loads {
		r.Register(gateDesc(i+1, online, i%2))
	}
	// a heartbeat that changes load must re-rank
	r.Heartbeat(gateDesc(5, 1, 0))

	byEndpoint := make(map[string]int)
	for _, g := range r.Gateways() {
		byEndpoint[g.Endpoint()] = g.Online
	}

	parts := strings.Split(r.RoutableGatewayList(), RouteSeparator)
	require.Len(t, parts, len(loads))

	online := make([]int, 0, len(parts))
	for _, p := range parts {
		online = append(online, byEndpoint[p])
	}
	require.True(t, sort.IntsAreSorted(online), "routable list not ordered by load: %v", online)
	require.Equal(t, "203.0.113.1:7007", parts[0])
	require.Equal(t, "203.0.113.1:7005", parts[1])
}

func TestRegistry_ScenarioLeastLoadedFirst(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(gateDesc(1, 50, 0))
	r.Register(gateDesc(2, 10, 0))

	require.Equal(t, "203.0.113.1:7002;203.0.113.1:7001", r.RoutableGatewayList())
}

func TestRegistry_ScenarioIneligibleGateway(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(gateDesc(3, 5, -1))

	list, err := r.ListByCategory(models.CategoryGate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 3, list[0].ID)
	require.Equal(t, "", r.RoutableGatewayList())
}

func TestRegistry_ScenarioExpiry(t *testing.T) {
	listener := &recordingListener{}
	r, clock := newTestRegistry(t, WithListener(listener))

	r.Register(models.ServerDescriptor{Category: models.CategoryGame, ID: 7, Name: "shard-7"})
	r.Register(gateDesc(1, 1, 0))

	clock.Advance(7 * time.Second)
	r.Sweeper().Sweep(clock.Now())

	list, err := r.ListByCategory(models.CategoryGame)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, "", r.RoutableGatewayList())
	require.Empty(t, r.Gateways())

	require.Len(t, listener.evicted, 2)
	require.Equal(t, []EvictReason{ReasonExpired, ReasonExpired}, listener.reasons)
	require.Equal(t, []time.Time{clock.Now(), clock.Now()}, listener.evictedAt)
}

func TestRegistry_UnknownCategory(t *testing.T) {
	r, _ := newTestRegistry(t)

	status := r.Register(models.ServerDescriptor{Category: models.CategoryNone, ID: 1})
	require.Equal(t, models.StatusUnknownCategory, status)

	status = r.Heartbeat(models.ServerDescriptor{Category: models.Category(99), ID: 1})
	require.Equal(t, models.StatusUnknownCategory, status)

	_, err := r.ListByCategory(models.CategoryNone)
	require.ErrorIs(t, err, ErrUnknownCategory)
	require.Empty(t, r.Stats())
}

func TestRegistry_NoInstancesIsEmptyNotError(t *testing.T) {
	r, _ := newTestRegistry(t)

	list, err := r.ListByCategory(models.CategoryWorld)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestRegistry_InvalidPort(t *testing.T) {
	r, _ := newTestRegistry(t)

	d := gateDesc(1, 0, 0)
	d.Port = 70000
	require.Equal(t, models.StatusInvalid, r.Register(d))
	require.Empty(t, r.Gateways())
}

func TestRegistry_ListenerSeesCreatedOnce(t *testing.T) {
	listener := &recordingListener{}
	r, _ := newTestRegistry(t, WithListener(listener))

	d := models.ServerDescriptor{Category: models.CategoryChat, ID: 1}
	r.Heartbeat(d)
	r.Heartbeat(d)
	r.Register(d)

	require.Equal(t, []bool{true, false, false}, listener.created)
}

func TestRegistry_Deregister(t *testing.T) {
	listener := &recordingListener{}
	r, clock := newTestRegistry(t, WithListener(listener))

	r.Register(gateDesc(4, 1, 0))
	clock.Advance(3 * time.Second)
	require.True(t, r.Deregister(models.CategoryGate, 4))
	require.False(t, r.Deregister(models.CategoryGate, 4))

	require.Equal(t, "", r.RoutableGatewayList())
	require.Equal(t, []EvictReason{ReasonDeregistered}, listener.reasons)
	require.Equal(t, []time.Time{clock.Now()}, listener.evictedAt)
}

func TestRegistry_CountryResolver(t *testing.T) {
	geo := staticGeo{"203.0.113.1": "DE", "198.51.100.9": "FR"}
	r, _ := newTestRegistry(t, WithCountryResolver(geo))

	r.Register(gateDesc(1, 0, 0))
	rec, _ := r.Get(models.CategoryGate, 1)
	require.Equal(t, "DE", rec.CountryCode)

	d := gateDesc(1, 0, 0)
	d.PublicIP = "198.51.100.9"
	r.Heartbeat(d)
	rec, _ = r.Get(models.CategoryGate, 1)
	require.Equal(t, "FR", rec.CountryCode)
}

func TestRegistry_StatsAndConcurrency(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Heartbeat(gateDesc(i%5+1, w*i, 0))
				r.Heartbeat(models.ServerDescriptor{Category: models.CategoryGame, ID: i})
				_ = r.RoutableGatewayList()
				_, _ = r.ListByCategory(models.CategoryGame)
				r.Sweeper().Sweep(time.Time{})
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, map[models.Category]int{models.CategoryGate: 5, models.CategoryGame: 50}, r.Stats())
	require.Len(t, strings.Split(r.RoutableGatewayList(), RouteSeparator), 5)
}
