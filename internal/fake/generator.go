// Package fake fills the journal with random member lifecycles for development.
package fake

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/storage"
)

// GenerateEvents writes count random members into the journal. Each member
// gets a registration and, most of the time, a later eviction or deregistration
// within the last 30 days.
func GenerateEvents(store storage.EventWriter, count int, rng *rand.Rand) int {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	countries := []string{"US", "DE", "RU", "CN", "BR", "FR", "GB", "PL", "KR", "JP", ""}
	categories := models.Categories()

	written := 0
	write := func(e models.Event) {
		if _, err := store.InsertEvent(e); err != nil {
			log.Warn().Err(err).Msg("Failed to write fake event")
			return
		}
		written++
	}

	for i := 0; i < count; i++ {
		category := categories[rng.Intn(len(categories))]
		if rng.Float32() < 0.4 {
			category = models.CategoryGate
		}

		ip := fmt.Sprintf("%d.%d.%d.%d", rng.Intn(220)+1, rng.Intn(255), rng.Intn(255), rng.Intn(255))
		joined := time.Now().
			Add(-time.Duration(rng.Intn(30)) * 24 * time.Hour).
			Add(-time.Duration(rng.Intn(1440)) * time.Minute)

		e := models.Event{
			At:       joined,
			Kind:     models.EventRegistered,
			Category: category,
			ServerID: rng.Intn(500) + 1,
			Name:     fmt.Sprintf("%s-%02d", category, rng.Intn(100)),
			Address:  net.JoinHostPort(ip, strconv.Itoa(7000+rng.Intn(100))),
			Country:  countries[rng.Intn(len(countries))],
			Online:   rng.Intn(3000),
			State:    rng.Intn(3) - 1,
		}
		write(e)

		switch roll := rng.Float32(); {
		case roll < 0.7:
			e.Kind = models.EventEvicted
		case roll < 0.8:
			e.Kind = models.EventDeregistered
		default:
			continue
		}
		e.At = joined.Add(time.Duration(rng.Intn(72*60)+1) * time.Minute)
		write(e)
	}

	return written
}
