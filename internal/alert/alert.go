package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind categorises an alert.
type Kind string

const (
	KindRateChange Kind = "RATE_CHANGE"
	KindLevelTouch Kind = "LEVEL_TOUCH"
	KindEventAhead Kind = "EVENT_AHEAD"
	KindNewsItem   Kind = "NEWS_ITEM"
	KindSynthesis  Kind = "SYNTHESIS"
)

// Status records the delivery outcome persisted alongside an alert.
type Status string

const (
	StatusSent       Status = "sent"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Field is one salient structured value carried by an alert. Order matters
// for fingerprinting, so fields are a slice rather than a map.
type Field struct {
	Name  string
	Value string
}

// Alert is the atomic unit flowing through the pipeline. Immutable after
// construction; the pipeline never mutates an alert in place.
type Alert struct {
	ID        string
	Kind      Kind
	Source    string
	Subject   string
	Title     string
	Body      string
	Fields    []Field
	Score     float64
	CreatedAt time.Time
}

var (
	// ErrMissingKind indicates an alert constructed without a kind.
	ErrMissingKind = errors.New("alert: kind is required")
	// ErrMissingSource indicates an alert constructed without a source.
	ErrMissingSource = errors.New("alert: source is required")
	// ErrMissingTitle indicates an alert constructed without a title.
	ErrMissingTitle = errors.New("alert: title is required")
)

// New validates and constructs an Alert. A malformed alert is a bug in the
// producing monitor, so construction fails fast instead of coercing.
func New(kind Kind, source, subject, title, body string, fields []Field, score float64, createdAt time.Time) (Alert, error) {
	if strings.TrimSpace(string(kind)) == "" {
		return Alert{}, ErrMissingKind
	}
	if strings.TrimSpace(source) == "" {
		return Alert{}, ErrMissingSource
	}
	if strings.TrimSpace(title) == "" {
		return Alert{}, ErrMissingTitle
	}
	if score < 0 || score > 100 {
		return Alert{}, fmt.Errorf("alert: score %f outside [0,100]", score)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		Subject:   subject,
		Title:     title,
		Body:      body,
		Fields:    append([]Field(nil), fields...),
		Score:     score,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Channel derives the pub/sub channel an alert is published on: the subject
// channel when a subject is present, otherwise the global channel.
func (a Alert) Channel() string {
	if a.Subject != "" {
		return strings.ToUpper(a.Subject)
	}
	return ChannelUnified
}

// ChannelUnified is the catch-all channel for alerts without a subject and
// for synthesised messages.
const ChannelUnified = "unified"
