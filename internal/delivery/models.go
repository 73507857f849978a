package delivery

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery route for the paid documents.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelPostal Channel = "postal"
)

// Dispatch records one fired notification.
type Dispatch struct {
	ApplicationID uuid.UUID `json:"applicationId"`
	Channel       Channel   `json:"channel"`
	Recipient     string    `json:"recipient"`
	TrackingID    string    `json:"trackingId,omitempty"`
	SentAt        time.Time `json:"sentAt"`
}
