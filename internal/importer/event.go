// Package importer moves subject changes into the store through Kafka. The
// publisher validates subjects and emits one event per subject keyed by
// kind; the applier consumes those events, writes them to the store and
// marks cached layouts stale.
package importer

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
)

// Op is the change an event carries.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// SubjectEvent is the message published to the subject import topic.
type SubjectEvent struct {
	BatchID     string        `json:"batch_id"`
	Op          Op            `json:"op"`
	Subject     lanes.Subject `json:"subject"`
	PublishedAt time.Time     `json:"published_at"`
}

// BatchResult summarises one Publish call.
type BatchResult struct {
	BatchID   string `json:"batch_id"`
	Op        Op     `json:"op"`
	Published int    `json:"published"`
}
