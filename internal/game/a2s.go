// Package game probes registered game servers with the Source Engine Query (A2S) protocol.
package game

import (
	"errors"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/registry"
)

// ErrNoAddress is returned when a member has no address to query.
var ErrNoAddress = errors.New("member has no queryable address")

// QueryServer requests A2S_INFO from ip:port over UDP.
func QueryServer(ip string, port int, options config.A2S) (*a2s.Info, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	return client.GetInfo()
}

// Target picks the address used to probe a member: the public IP when set,
// otherwise the internal one, and the game port when set, otherwise the service port.
func Target(rec *registry.ServerRecord) (string, int, error) {
	ip := rec.PublicIP
	if ip == "" {
		ip = rec.IP
	}

	port := rec.GamePort
	if port == 0 {
		port = rec.Port
	}

	if ip == "" || port <= 0 {
		return "", 0, ErrNoAddress
	}

	return ip, port, nil
}

// Probe queries the member's game endpoint.
func Probe(rec *registry.ServerRecord, options config.A2S) (*a2s.Info, error) {
	ip, port, err := Target(rec)
	if err != nil {
		return nil, err
	}

	return QueryServer(ip, port, options)
}
