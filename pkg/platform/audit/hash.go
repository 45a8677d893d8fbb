package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// canonicalEvent fixes field order for hashing. Detail is a map, which
// encoding/json serializes with sorted keys.
type canonicalEvent struct {
	ID        string            `json:"id"`
	Sequence  int64             `json:"sequence"`
	Action    Action            `json:"action"`
	Resource  string            `json:"resource"`
	Outcome   Outcome           `json:"outcome"`
	Actor     string            `json:"actor"`
	SessionID string            `json:"session_id"`
	RequestID string            `json:"request_id"`
	Detail    map[string]string `json:"detail"`
}

// ComputeHash returns hex(SHA-256(canonical fields || timestamp || previousHash)).
func ComputeHash(e *Event) (string, error) {
	payload, err := json.Marshal(canonicalEvent{
		ID:        e.ID,
		Sequence:  e.Sequence,
		Action:    e.Action,
		Resource:  e.Resource,
		Outcome:   e.Outcome,
		Actor:     e.Actor,
		SessionID: e.SessionID,
		RequestID: e.RequestID,
		Detail:    e.Detail,
	})
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(e.PreviousHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sign returns hex(SHA-256(hash || secret)).
func Sign(hash string, secret []byte) string {
	h := sha256.New()
	h.Write([]byte(hash))
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}
