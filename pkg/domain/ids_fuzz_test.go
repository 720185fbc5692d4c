//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseDonorID checks parsing never panics and valid ids round-trip.
func FuzzParseDonorID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE donors;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDonorID(input)
		if err == nil {
			roundTrip, err2 := ParseDonorID(id.String())
			if err2 != nil {
				t.Errorf("valid id failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed id value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseRequestID checks accepted request ids always re-parse to themselves.
func FuzzParseRequestID(f *testing.F) {
	f.Add("REQ-2026-000001")
	f.Add("REQ-2026-1")
	f.Add("REQ--1")
	f.Add("")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRequestID(input)
		if err != nil {
			return
		}
		again, err := ParseRequestID(id.String())
		if err != nil || again != id {
			t.Errorf("accepted id %q did not re-parse", id)
		}
	})
}
