// Package registry is the in-memory membership registry of the cluster.
//
// Members register and heartbeat through Registry, which stores them in a
// MembershipTable keyed by (category, id). Gateways are mirrored into a
// GatewayRanker that keeps them ordered by load for client routing, and a
// LivenessSweeper evicts members that stop heartbeating.
package registry

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
)

// ErrUnknownCategory is returned for requests naming no recognized category.
var ErrUnknownCategory = errors.New("unknown server category")

// EvictReason tells listeners why a member left.
type EvictReason string

// Eviction reasons.
const (
	ReasonExpired      EvictReason = "expired"
	ReasonDeregistered EvictReason = "deregistered"
)

// Listener observes membership changes. Calls are synchronous and must not block.
// at is the registry clock reading when the member was removed.
type Listener interface {
	MemberRegistered(rec ServerRecord, created bool)
	MemberEvicted(rec ServerRecord, reason EvictReason, at time.Time)
}

// CountryResolver maps a public IP to an ISO country code, "" if unknown.
type CountryResolver interface {
	GetCountryCode(ip string) string
}

// Options configures liveness tracking.
type Options struct {
	LivenessTimeout time.Duration
	SweepInterval   time.Duration
	SweepDelay      time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		LivenessTimeout: 6 * time.Second,
		SweepInterval:   time.Second,
		SweepDelay:      10 * time.Second,
	}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithListener adds a membership listener.
func WithListener(l Listener) Option {
	return func(r *Registry) { r.listeners = append(r.listeners, l) }
}

// WithCountryResolver enables country tagging of public IPs.
func WithCountryResolver(cr CountryResolver) Option {
	return func(r *Registry) { r.geo = cr }
}

// Registry is the operation surface used by the transport layer.
type Registry struct {
	table     *MembershipTable
	ranker    *GatewayRanker
	sweeper   *LivenessSweeper
	geo       CountryResolver
	now       func() time.Time
	listeners []Listener
}

// New builds a registry. The sweeper is not running until Start.
func New(opts Options, options ...Option) *Registry {
	r := &Registry{now: time.Now}
	for _, o := range options {
		o(r)
	}

	r.ranker = NewGatewayRanker()
	r.table = NewMembershipTable(r.ranker, r.now)
	r.sweeper = NewLivenessSweeper(r.table, opts, r.now, func(rec ServerRecord, at time.Time) {
		r.notifyEvicted(rec, ReasonExpired, at)
	})

	return r
}

// Start launches the liveness sweeper.
func (r *Registry) Start() {
	r.sweeper.Start()
}

// Close stops the liveness sweeper.
func (r *Registry) Close() {
	r.sweeper.Stop()
}

// Sweeper exposes the liveness sweeper, mainly to drive sweeps in tests.
func (r *Registry) Sweeper() *LivenessSweeper {
	return r.sweeper
}

// Register creates or overwrites the member described by d.
func (r *Registry) Register(d models.ServerDescriptor) models.Status {
	if status := validate(&d); status != models.StatusOK {
		return status
	}

	rec, created := r.store(&d)

	log.Info().
		Str("category", rec.Category.String()).
		Int("id", rec.ID).
		Str("name", rec.Name).
		Str("address", rec.Endpoint()).
		Int("online", rec.Online).
		Int("state", rec.State).
		Bool("created", created).
		Msg("Server registered")

	return models.StatusOK
}

// Heartbeat refreshes the member described by d. A member that is not
// registered yet is registered as if Register had been called.
func (r *Registry) Heartbeat(d models.ServerDescriptor) models.Status {
	if status := validate(&d); status != models.StatusOK {
		return status
	}

	if _, ok := r.table.Get(d.Category, d.ID); !ok {
		return r.Register(d)
	}

	rec, _ := r.store(&d)

	log.Trace().
		Str("category", rec.Category.String()).
		Int("id", rec.ID).
		Int("online", rec.Online).
		Int("state", rec.State).
		Msg("Server heartbeat")

	return models.StatusOK
}

// ListByCategory returns every live member of category. An unknown category
// yields ErrUnknownCategory; a category without members yields an empty list.
func (r *Registry) ListByCategory(category models.Category) ([]models.ServerDescriptor, error) {
	if !category.Valid() {
		log.Warn().Int("category", int(category)).Msg("Requested server category does not exist")
		return nil, ErrUnknownCategory
	}

	records := r.table.ListByCategory(category)
	if len(records) == 0 {
		log.Warn().Str("category", category.String()).Msg("No server instances registered")
	}

	out := make([]models.ServerDescriptor, 0, len(records))
	for i := range records {
		out = append(out, records[i].Descriptor())
	}

	return out, nil
}

// Get returns the member (category, id).
func (r *Registry) Get(category models.Category, id int) (ServerRecord, bool) {
	return r.table.Get(category, id)
}

// Deregister removes a member immediately, bypassing the liveness timeout.
func (r *Registry) Deregister(category models.Category, id int) bool {
	rec, ok := r.table.Evict(category, id)
	if !ok {
		return false
	}

	log.Info().
		Str("category", rec.Category.String()).
		Int("id", rec.ID).
		Str("name", rec.Name).
		Msg("Server deregistered")

	r.notifyEvicted(rec, ReasonDeregistered, r.now())

	return true
}

// RoutableGatewayList returns eligible gateways as "host:port" pairs joined
// with ";", least loaded first, or "" when none is eligible.
func (r *Registry) RoutableGatewayList() string {
	return r.ranker.RoutableList()
}

// Gateways returns the full ranked gateway list, ineligible entries included.
func (r *Registry) Gateways() []GatewayEntry {
	return r.ranker.Entries()
}

// Stats returns the member count per category.
func (r *Registry) Stats() map[models.Category]int {
	return r.table.Counts()
}

func (r *Registry) store(d *models.ServerDescriptor) (ServerRecord, bool) {
	rec := recordFromDescriptor(d)
	rec.CountryCode = r.countryOf(&rec)

	stored, created := r.table.Upsert(d.Category, rec)
	for _, l := range r.listeners {
		l.MemberRegistered(stored, created)
	}

	return stored, created
}

func (r *Registry) countryOf(rec *ServerRecord) string {
	if r.geo == nil || rec.PublicIP == "" {
		return ""
	}

	if prev, ok := r.table.Get(rec.Category, rec.ID); ok && prev.PublicIP == rec.PublicIP && prev.CountryCode != "" {
		return prev.CountryCode
	}

	return r.geo.GetCountryCode(rec.PublicIP)
}

func (r *Registry) notifyEvicted(rec ServerRecord, reason EvictReason, at time.Time) {
	for _, l := range r.listeners {
		l.MemberEvicted(rec, reason, at)
	}
}

func validate(d *models.ServerDescriptor) models.Status {
	if !d.Category.Valid() {
		log.Warn().
			Int("category", int(d.Category)).
			Int("id", d.ID).
			Msg("Rejected server with unknown category")
		return models.StatusUnknownCategory
	}

	for _, port := range [...]int{d.Port, d.HTTPPort, d.GamePort} {
		if port < 0 || port > 65535 {
			log.Debug().
				Str("category", d.Category.String()).
				Int("id", d.ID).
				Int("port", port).
				Msg("Rejected server with invalid port")
			return models.StatusInvalid
		}
	}

	return models.StatusOK
}
