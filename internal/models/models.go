// Package models defines the data structures shared by the transport, the registry and the journal.
package models

import "time"

// Status is the result code returned to registering servers.
type Status int

// Status codes.
const (
	StatusOK Status = iota
	StatusUnknownCategory
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownCategory:
		return "unknown category"
	case StatusInvalid:
		return "invalid payload"
	default:
		return "unknown status"
	}
}

// ServerDescriptor is the payload a cluster member sends on register and update,
// and the shape returned by list requests.
type ServerDescriptor struct {
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
	Name          string    `json:"name"`
	IP            string    `json:"ip"`
	PublicIP      string    `json:"wwwip"`
	Content       string    `json:"content,omitempty"`
	Version       string    `json:"version,omitempty"`
	CountryCode   string    `json:"country_code,omitempty"`
	MaintainTime  int64     `json:"maintain_time,omitempty"`
	OpenTime      int64     `json:"open_time,omitempty"`
	ID            int       `json:"id"`
	Category      Category  `json:"type"`
	Port          int       `json:"port"`
	HTTPPort      int       `json:"http_port,omitempty"`
	GamePort      int       `json:"game_port,omitempty"`
	Online        int       `json:"online"`
	State         int       `json:"state"`
	BelongID      int       `json:"belong_id,omitempty"`
	MaxUserCount  int       `json:"max_user_count,omitempty"`
}

// StatusResponse is the reply to register and update calls.
type StatusResponse struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// ServerListResponse is the reply to list calls.
type ServerListResponse struct {
	Servers []ServerDescriptor `json:"servers"`
}

// EventKind is a member lifecycle transition recorded in the journal.
type EventKind string

// Journal event kinds.
const (
	EventRegistered   EventKind = "registered"
	EventEvicted      EventKind = "evicted"
	EventDeregistered EventKind = "deregistered"
)

// Event is a single journal row.
type Event struct {
	At       time.Time `json:"at"`
	Kind     EventKind `json:"kind"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Country  string    `json:"country_code,omitempty"`
	Seq      int64     `json:"seq"`
	Category Category  `json:"type"`
	ServerID int       `json:"id"`
	Online   int       `json:"online"`
	State    int       `json:"state"`
}
