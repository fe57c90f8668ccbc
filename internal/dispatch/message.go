package dispatch

import (
	"encoding/json"
	"time"

	"market-pulse-alerts/internal/alert"
)

// Message is the displayable payload handed to the sinks, rendered once from
// either a raw alert or a synthesis result.
type Message struct {
	AlertID   string        `json:"alert_id"`
	Kind      alert.Kind    `json:"kind"`
	Source    string        `json:"source"`
	Subject   string        `json:"subject,omitempty"`
	Title     string        `json:"title"`
	Body      string        `json:"body,omitempty"`
	Fields    []alert.Field `json:"fields,omitempty"`
	Score     float64       `json:"score"`
	Channel   string        `json:"channel"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMessage renders an alert for dispatch.
func NewMessage(a alert.Alert) Message {
	return Message{
		AlertID:   a.ID,
		Kind:      a.Kind,
		Source:    a.Source,
		Subject:   a.Subject,
		Title:     a.Title,
		Body:      a.Body,
		Fields:    a.Fields,
		Score:     a.Score,
		Channel:   a.Channel(),
		CreatedAt: a.CreatedAt,
	}
}

// Encode serialises the message for pub/sub delivery.
func (m Message) Encode() []byte {
	payload, err := json.Marshal(m)
	if err != nil {
		// Message is a plain value type; marshal cannot fail in practice.
		return []byte(`{}`)
	}
	return payload
}
