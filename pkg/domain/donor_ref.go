package domain

import (
	"github.com/google/uuid"

	dErrors "transplant/pkg/domain-errors"
)

// DonorKind discriminates the two registries a match can come from.
type DonorKind string

const (
	DonorKindDonor DonorKind = "donor"
	DonorKindUser  DonorKind = "user"
)

func (k DonorKind) IsValid() bool {
	return k == DonorKindDonor || k == DonorKindUser
}

// DonorRef points at either a registered donor or a public user profile.
// Consumers switch on Kind; use Donor and Profile to extract the typed id.
type DonorRef struct {
	Kind DonorKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func RefToDonor(donorID DonorID) DonorRef {
	return DonorRef{Kind: DonorKindDonor, ID: uuid.UUID(donorID)}
}

func RefToProfile(userID UserID) DonorRef {
	return DonorRef{Kind: DonorKindUser, ID: uuid.UUID(userID)}
}

// Donor returns the donor id when the ref points at the donor registry.
func (r DonorRef) Donor() (DonorID, bool) {
	return DonorID(r.ID), r.Kind == DonorKindDonor
}

// Profile returns the user id when the ref points at a public profile.
func (r DonorRef) Profile() (UserID, bool) {
	return UserID(r.ID), r.Kind == DonorKindUser
}

func (r DonorRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// ParseDonorRef builds a ref from its wire parts. An empty kind means donor.
func ParseDonorRef(kind, rawID string) (DonorRef, error) {
	k := DonorKind(kind)
	if kind == "" {
		k = DonorKindDonor
	}
	if !k.IsValid() {
		return DonorRef{}, dErrors.New(dErrors.CodeInvalidInput, "donor kind must be donor or user")
	}
	u, err := parseUUID(rawID, string(k))
	if err != nil {
		return DonorRef{}, err
	}
	return DonorRef{Kind: k, ID: u}, nil
}
