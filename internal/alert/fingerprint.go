package alert

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// FingerprintSpec tunes how much of an alert's payload participates in its
// dedup identity. More material hashed means fewer false duplicates but more
// repeat notifications; less material collapses near-identical alerts harder
// at the cost of occasionally suppressing genuinely distinct ones (two price
// levels sharing a long title prefix, for example). The defaults sit where
// the spam filter stops eating distinct levels; treat them as tunable.
type FingerprintSpec struct {
	// MaxNumbers bounds how many numeric substrings from title+body are hashed.
	MaxNumbers int
	// MaxFields bounds how many structured fields are hashed.
	MaxFields int
	// FieldValueLen truncates each hashed field value.
	FieldValueLen int
	// TimeBucket is the coarse bucket created_at is rounded down to.
	TimeBucket time.Duration
}

// DefaultFingerprintSpec is the tuning used by the production pipeline.
func DefaultFingerprintSpec() FingerprintSpec {
	return FingerprintSpec{
		MaxNumbers:    5,
		MaxFields:     6,
		FieldValueLen: 50,
		TimeBucket:    time.Minute,
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Fingerprint computes a stable dedup identity from an alert's semantic
// fields. Deterministic and pure: same alert, same fingerprint.
func Fingerprint(a Alert, spec FingerprintSpec) string {
	if spec.MaxNumbers <= 0 {
		spec.MaxNumbers = 5
	}
	if spec.MaxFields <= 0 {
		spec.MaxFields = 6
	}
	if spec.FieldValueLen <= 0 {
		spec.FieldValueLen = 50
	}
	if spec.TimeBucket <= 0 {
		spec.TimeBucket = time.Minute
	}

	parts := make([]string, 0, 4+spec.MaxNumbers+spec.MaxFields)
	parts = append(parts, string(a.Kind), a.Subject, a.Source, normalizeTitle(a.Title))

	numbers := numberPattern.FindAllString(a.Title+" "+a.Body, spec.MaxNumbers)
	parts = append(parts, numbers...)

	fields := a.Fields
	if len(fields) > spec.MaxFields {
		fields = fields[:spec.MaxFields]
	}
	for _, f := range fields {
		value := f.Value
		if len(value) > spec.FieldValueLen {
			value = value[:spec.FieldValueLen]
		}
		parts = append(parts, f.Name+"="+value)
	}

	bucket := a.CreatedAt.UTC().Truncate(spec.TimeBucket)
	parts = append(parts, bucket.Format(time.RFC3339))

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
