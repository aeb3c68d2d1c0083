// Package audit records verification and sync activity for operational
// visibility. Events never carry holder PII; scanned certificates are
// referenced by a hash of their UVCI only.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Action names one auditable occurrence.
type Action string

const (
	ActionScanVerified  Action = "scan_verified"
	ActionScanRejected  Action = "scan_rejected"
	ActionSyncCompleted Action = "sync_completed"
	ActionSyncFailed    Action = "sync_failed"
	ActionTrustReplaced Action = "trust_list_replaced"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// Result carries the check outcome for scan events and the sync kind
	// for sync events.
	Result    string `json:"result,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Country   string `json:"country,omitempty"`
	EntryKind string `json:"entryKind,omitempty"`
	// UVCIHash identifies the scanned certificate without storing the
	// identifier itself.
	UVCIHash  string `json:"uvciHash,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// HashUVCI derives the stored certificate reference from a raw UVCI.
func HashUVCI(uvci string) string {
	if uvci == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(uvci))
	return hex.EncodeToString(sum[:])
}
