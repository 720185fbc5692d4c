package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "transplant/pkg/domain-errors"
)

// TestParseUUID_Invariants validates that ids at trust boundaries are valid,
// non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDonorID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDonorID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseHospitalID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseDonorID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, DonorID(valid), id)
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE donors;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errUser := ParseUserID(tt.input)
			_, errDonor := ParseDonorID(tt.input)
			_, errHospital := ParseHospitalID(tt.input)
			_, errTransplant := ParseTransplantID(tt.input)
			for _, err := range []error{errUser, errDonor, errHospital, errTransplant} {
				if tt.wantErr {
					require.Error(t, err)
					assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				} else {
					require.NoError(t, err)
				}
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Run("formats year and zero-padded sequence", func(t *testing.T) {
		assert.Equal(t, RequestID("REQ-2026-000042"), NewRequestID(2026, 42))
	})

	t.Run("round-trips through parse", func(t *testing.T) {
		id := NewRequestID(2026, 7)
		parsed, err := ParseRequestID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		for _, in := range []string{"", "REQ-2026", "RQ-2026-1", "REQ-abcd-1", "REQ-2026-0", "REQ-2026--1"} {
			_, err := ParseRequestID(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

func TestMedicalEnums(t *testing.T) {
	t.Run("blood type is normalized", func(t *testing.T) {
		b, err := ParseBloodType(" o- ")
		require.NoError(t, err)
		assert.Equal(t, BloodONeg, b)
	})

	t.Run("blood type outside the eight groups is rejected", func(t *testing.T) {
		_, err := ParseBloodType("C+")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("organ list rejects unknown organs", func(t *testing.T) {
		_, err := ParseOrganTypes([]string{"kidney", "spleen"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		organs, err := ParseOrganTypes([]string{"Kidney", "liver"})
		require.NoError(t, err)
		assert.Equal(t, []OrganType{OrganKidney, OrganLiver}, organs)
		assert.True(t, ContainsOrgan(organs, OrganLiver))
		assert.False(t, ContainsOrgan(organs, OrganHeart))
	})
}

func TestActorActsFor(t *testing.T) {
	h1 := HospitalID(uuid.New())
	h2 := HospitalID(uuid.New())

	assert.True(t, Actor{Role: RoleAdmin}.ActsFor(h1))
	assert.True(t, Actor{Role: RoleHospital, HospitalID: h1}.ActsFor(h1))
	assert.False(t, Actor{Role: RoleHospital, HospitalID: h1}.ActsFor(h2))
	assert.False(t, Actor{Role: RoleHospital}.ActsFor(HospitalID{}))
	assert.False(t, Actor{Role: RoleDonor}.ActsFor(h1))
}

func TestTypedIDsEncodeAsStrings(t *testing.T) {
	type payload struct {
		Donor    DonorID    `json:"donor"`
		Hospital HospitalID `json:"hospital"`
	}
	in := payload{Donor: NewDonorID(), Hospital: NewHospitalID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"donor":"`+in.Donor.String()+`"`)

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"donor":"nope"}`), &out))
}
