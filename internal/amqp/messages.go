package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// InvalidationMessage tells other clients that the listed cache namespaces
// changed on the server. Origin identifies the publishing process so it can
// ignore its own broadcasts.
type InvalidationMessage struct {
	Origin    string    `json:"origin"`
	Resources []string  `json:"resources"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInvalidationMessage(origin string, resources []string) *InvalidationMessage {
	return &InvalidationMessage{
		Origin:    origin,
		Resources: append([]string(nil), resources...),
		Timestamp: time.Now(),
	}
}

func (m *InvalidationMessage) Validate() error {
	if m.Origin == "" {
		return errors.New("invalidation message without origin")
	}
	if len(m.Resources) == 0 {
		return errors.New("invalidation message without resources")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
