package registry

import (
	"sort"
	"strings"
	"sync"
)

// RouteSeparator joins endpoints in the routable gateway list.
const RouteSeparator = ";"

// GatewayEntry is the ranker's view of one gateway.
type GatewayEntry struct {
	PublicIP string `json:"wwwip"`
	Name     string `json:"name"`
	ID       int    `json:"id"`
	Port     int    `json:"port"`
	Online   int    `json:"online"`
	State    int    `json:"state"`
}

// Routable reports whether clients may be sent to this gateway.
func (e GatewayEntry) Routable() bool {
	return e.State >= 0
}

// Endpoint formats the public "host:port" of the gateway.
func (e GatewayEntry) Endpoint() string {
	return endpoint(e.PublicIP, e.Port)
}

func gatewayEntry(r *ServerRecord) GatewayEntry {
	return GatewayEntry{
		ID:       r.ID,
		Name:     r.Name,
		PublicIP: r.PublicIP,
		Port:     r.Port,
		Online:   r.Online,
		State:    r.State,
	}
}

// GatewayRanker keeps gateways sorted by ascending online count.
// The list is re-sorted and the routable string rebuilt on every mutation,
// so reads never sort.
type GatewayRanker struct {
	entries  []GatewayEntry
	routable string
	mu       sync.RWMutex
}

// NewGatewayRanker returns an empty ranker.
func NewGatewayRanker() *GatewayRanker {
	return &GatewayRanker{}
}

// Put inserts or replaces the entry for rec.ID.
func (g *GatewayRanker) Put(rec *ServerRecord) {
	entry := gatewayEntry(rec)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = dropID(g.entries, entry.ID)
	g.entries = append(g.entries, entry)
	sort.SliceStable(g.entries, func(i, j int) bool {
		return g.entries[i].Online < g.entries[j].Online
	})
	g.rebuild()
}

// Remove deletes the entry for id. Absent ids are ignored.
func (g *GatewayRanker) Remove(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	before := len(g.entries)
	g.entries = dropID(g.entries, id)
	if len(g.entries) != before {
		g.rebuild()
	}
}

// RoutableList returns eligible gateways as "host:port" joined with RouteSeparator,
// least loaded first, or "" when none is eligible.
func (g *GatewayRanker) RoutableList() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.routable
}

// Entries returns a copy of the ranked list, ineligible gateways included.
func (g *GatewayRanker) Entries() []GatewayEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]GatewayEntry, len(g.entries))
	copy(out, g.entries)

	return out
}

// Len returns the number of ranked gateways.
func (g *GatewayRanker) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.entries)
}

// rebuild must be called with mu held for writing.
func (g *GatewayRanker) rebuild() {
	var sb strings.Builder
	for i := range g.entries {
		e := &g.entries[i]
		if !e.Routable() {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(RouteSeparator)
		}
		sb.WriteString(e.Endpoint())
	}
	g.routable = sb.String()
}

func dropID(entries []GatewayEntry, id int) []GatewayEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	// clear the tail so stale entries are not retained by the backing array
	for i := len(out); i < len(entries); i++ {
		entries[i] = GatewayEntry{}
	}

	return out
}
