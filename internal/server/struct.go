package server

import (
	"sync"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/telemetry"
)

// EventReader reads the lifecycle journal.
type EventReader interface {
	RecentEvents(category models.Category, limit int) ([]models.Event, error)
}

// Server holds the dependencies and runtime state of the HTTP transport.
type Server struct {
	// registry is the membership registry every member call is forwarded to.
	registry *registry.Registry

	// events reads the lifecycle journal. It can be nil when the journal is disabled.
	events EventReader

	// metrics instruments handlers and serves /metrics.
	metrics *telemetry.Metrics

	// probe queries a member over A2S; replaced in tests.
	probe func(*registry.ServerRecord, config.A2S) (*a2s.Info, error)

	// shutdown stops background goroutines started by middleware.
	shutdown chan struct{}

	// authToken guards the admin endpoints.
	authToken string

	// a2sOptions holds timeouts and buffer size for member probes.
	a2sOptions config.A2S

	// maxBody caps register and update payloads.
	maxBody int64

	hardLimitCount int
	hardLimitWin   time.Duration

	// trustProxy lets CF-Connecting-IP and X-Forwarded-For decide the client IP.
	trustProxy bool

	stopOnce sync.Once
}
