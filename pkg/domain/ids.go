// Package domain holds typed identifiers shared across facegate modules.
//
// Each identifier wraps a UUID so the compiler rejects passing a SubjectID where
// a SessionID is expected. Parse functions are the trust boundary: they reject
// malformed and nil UUIDs with a CodeInvalidInput error.
package domain

import (
	"github.com/google/uuid"

	dErrors "facegate/pkg/domain-errors"
)

type (
	SubjectID   uuid.UUID
	SessionID   uuid.UUID
	TerminalID  uuid.UUID
	EmbeddingID uuid.UUID
	AlertID     uuid.UUID
	AttemptID   uuid.UUID
)

func parseID[T ~[16]byte](s, kind string) (T, error) {
	if s == "" {
		return T{}, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return T{}, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return T{}, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return T(u), nil
}

func unmarshalID[T ~[16]byte](dst *T, text []byte) error {
	if len(text) == 0 {
		*dst = T{}
		return nil
	}
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*dst = T(u)
	return nil
}

func ParseSubjectID(s string) (SubjectID, error)     { return parseID[SubjectID](s, "subject ID") }
func ParseSessionID(s string) (SessionID, error)     { return parseID[SessionID](s, "session ID") }
func ParseTerminalID(s string) (TerminalID, error)   { return parseID[TerminalID](s, "terminal ID") }
func ParseEmbeddingID(s string) (EmbeddingID, error) { return parseID[EmbeddingID](s, "embedding ID") }
func ParseAlertID(s string) (AlertID, error)         { return parseID[AlertID](s, "alert ID") }
func ParseAttemptID(s string) (AttemptID, error)     { return parseID[AttemptID](s, "attempt ID") }

func NewSubjectID() SubjectID     { return SubjectID(uuid.New()) }
func NewSessionID() SessionID     { return SessionID(uuid.New()) }
func NewTerminalID() TerminalID   { return TerminalID(uuid.New()) }
func NewEmbeddingID() EmbeddingID { return EmbeddingID(uuid.New()) }
func NewAlertID() AlertID         { return AlertID(uuid.New()) }
func NewAttemptID() AttemptID     { return AttemptID(uuid.New()) }

func (id SubjectID) String() string   { return uuid.UUID(id).String() }
func (id SessionID) String() string   { return uuid.UUID(id).String() }
func (id TerminalID) String() string  { return uuid.UUID(id).String() }
func (id EmbeddingID) String() string { return uuid.UUID(id).String() }
func (id AlertID) String() string     { return uuid.UUID(id).String() }
func (id AttemptID) String() string   { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TerminalID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EmbeddingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AlertID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttemptID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs readable in JSON payloads and cache values.

func (id SubjectID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id TerminalID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id EmbeddingID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AlertID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id AttemptID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *SubjectID) UnmarshalText(b []byte) error   { return unmarshalID(id, b) }
func (id *SessionID) UnmarshalText(b []byte) error   { return unmarshalID(id, b) }
func (id *TerminalID) UnmarshalText(b []byte) error  { return unmarshalID(id, b) }
func (id *EmbeddingID) UnmarshalText(b []byte) error { return unmarshalID(id, b) }
func (id *AlertID) UnmarshalText(b []byte) error     { return unmarshalID(id, b) }
func (id *AttemptID) UnmarshalText(b []byte) error   { return unmarshalID(id, b) }
