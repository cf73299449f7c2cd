package registry

import (
	"net"
	"strconv"
	"time"

	"github.com/woozymasta/warden/internal/models"
)

// ServerRecord is a tracked cluster member. Values handed out by the
// registry are copies; re-fetch to observe later heartbeats.
type ServerRecord struct {
	LastHeartbeat time.Time
	FirstSeen     time.Time
	Name          string
	IP            string
	PublicIP      string
	Content       string
	Version       string
	CountryCode   string
	MaintainTime  int64
	OpenTime      int64
	ID            int
	Category      models.Category
	Port          int
	HTTPPort      int
	GamePort      int
	Online        int
	State         int
	BelongID      int
	MaxUserCount  int
}

// key identifies a record in the table.
type key struct {
	category models.Category
	id       int
}

func (r *ServerRecord) key() key {
	return key{category: r.Category, id: r.ID}
}

// Routable reports whether the record may be offered to clients.
func (r *ServerRecord) Routable() bool {
	return r.State >= 0
}

// Endpoint formats the public address clients connect to.
func (r *ServerRecord) Endpoint() string {
	return endpoint(r.PublicIP, r.Port)
}

func endpoint(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// overwrite copies payload fields from src, keeping identity and timestamps.
func (r *ServerRecord) overwrite(src *ServerRecord) {
	r.Name = src.Name
	r.IP = src.IP
	r.PublicIP = src.PublicIP
	r.Content = src.Content
	r.Version = src.Version
	r.CountryCode = src.CountryCode
	r.MaintainTime = src.MaintainTime
	r.OpenTime = src.OpenTime
	r.Port = src.Port
	r.HTTPPort = src.HTTPPort
	r.GamePort = src.GamePort
	r.Online = src.Online
	r.State = src.State
	r.BelongID = src.BelongID
	r.MaxUserCount = src.MaxUserCount
}

// recordFromDescriptor builds a record from a wire payload. Timestamps are left for the table.
func recordFromDescriptor(d *models.ServerDescriptor) ServerRecord {
	return ServerRecord{
		ID:           d.ID,
		Category:     d.Category,
		Name:         d.Name,
		IP:           d.IP,
		PublicIP:     d.PublicIP,
		Content:      d.Content,
		Version:      d.Version,
		MaintainTime: d.MaintainTime,
		OpenTime:     d.OpenTime,
		Port:         d.Port,
		HTTPPort:     d.HTTPPort,
		GamePort:     d.GamePort,
		Online:       d.Online,
		State:        d.State,
		BelongID:     d.BelongID,
		MaxUserCount: d.MaxUserCount,
	}
}

// Descriptor converts the record to its wire shape.
func (r *ServerRecord) Descriptor() models.ServerDescriptor {
	return models.ServerDescriptor{
		ID:            r.ID,
		Category:      r.Category,
		Name:          r.Name,
		IP:            r.IP,
		PublicIP:      r.PublicIP,
		Content:       r.Content,
		Version:       r.Version,
		CountryCode:   r.CountryCode,
		MaintainTime:  r.MaintainTime,
		OpenTime:      r.OpenTime,
		Port:          r.Port,
		HTTPPort:      r.HTTPPort,
		GamePort:      r.GamePort,
		Online:        r.Online,
		State:         r.State,
		BelongID:      r.BelongID,
		MaxUserCount:  r.MaxUserCount,
		LastHeartbeat: r.LastHeartbeat,
	}
}
