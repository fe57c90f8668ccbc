package storage

import (
	"strings"
	"time"

	"market-pulse-alerts/internal/alert"
)

// AlertRecord is one row of the append-only alert audit log. The body is
// persisted as a bounded digest, not the full rendered text.
type AlertRecord struct {
	ID         int64
	AlertID    string
	Timestamp  time.Time
	Kind       alert.Kind
	Source     string
	Subject    string
	Title      string
	BodyDigest string
	Status     alert.Status
	CreatedAt  time.Time
}

// QueryFilter narrows audit-log reads for the reporting endpoints. Zero
// values match everything.
type QueryFilter struct {
	Subject string
	Kind    alert.Kind
	Status  alert.Status
}

const bodyDigestLen = 256

// NewRecord maps a pipeline alert onto its audit row.
func NewRecord(a alert.Alert, status alert.Status) AlertRecord {
	digest := a.Body
	if len(digest) > bodyDigestLen {
		digest = digest[:bodyDigestLen]
	}
	return AlertRecord{
		AlertID:    a.ID,
		Timestamp:  a.CreatedAt,
		Kind:       a.Kind,
		Source:     a.Source,
		Subject:    strings.ToUpper(a.Subject),
		Title:      a.Title,
		BodyDigest: digest,
		Status:     status,
	}
}
