package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "transplant/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a donor id can never be passed
// where a hospital id is expected.
type (
	UserID       uuid.UUID
	DonorID      uuid.UUID
	HospitalID   uuid.UUID
	TransplantID uuid.UUID
	EntryID      uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id DonorID) String() string      { return uuid.UUID(id).String() }
func (id HospitalID) String() string   { return uuid.UUID(id).String() }
func (id TransplantID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DonorID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id HospitalID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TransplantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text encoding keeps ids as canonical UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id DonorID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id HospitalID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id TransplantID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *DonorID) UnmarshalText(b []byte) error      { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *HospitalID) UnmarshalText(b []byte) error   { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *TransplantID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *EntryID) UnmarshalText(b []byte) error      { return unmarshalUUID(b, (*uuid.UUID)(id)) }

func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	return dst.UnmarshalText(b)
}

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewDonorID() DonorID           { return DonorID(uuid.New()) }
func NewHospitalID() HospitalID     { return HospitalID(uuid.New()) }
func NewTransplantID() TransplantID { return TransplantID(uuid.New()) }
func NewEntryID() EntryID           { return EntryID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID(s, "donor")
	return DonorID(u), err
}

func ParseHospitalID(s string) (HospitalID, error) {
	u, err := parseUUID(s, "hospital")
	return HospitalID(u), err
}

func ParseTransplantID(s string) (TransplantID, error) {
	u, err := parseUUID(s, "transplant")
	return TransplantID(u), err
}

// maxIDLength bounds input before it reaches the parser.
const maxIDLength = 64

func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// RequestID is the human-readable request identifier REQ-<year>-<sequence>.
// It is issued once from an atomic sequence and never reassigned.
type RequestID string

const requestIDPrefix = "REQ"

// NewRequestID formats a request id from the issuing year and sequence number.
func NewRequestID(year int, seq int64) RequestID {
	return RequestID(fmt.Sprintf("%s-%d-%06d", requestIDPrefix, year, seq))
}

// ParseRequestID validates the REQ-<year>-<sequence> shape.
func ParseRequestID(s string) (RequestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "request id cannot be empty")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid request id")
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != requestIDPrefix {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid request id")
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year < 1970 || year > 9999 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid request id year")
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seq <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid request id sequence")
	}
	return RequestID(s), nil
}

func (id RequestID) String() string { return string(id) }
