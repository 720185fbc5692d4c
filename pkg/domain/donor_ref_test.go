package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "transplant/pkg/domain-errors"
)

func TestDonorRef(t *testing.T) {
	donorID := NewDonorID()
	ref := RefToDonor(donorID)

	got, ok := ref.Donor()
	require.True(t, ok)
	assert.Equal(t, donorID, got)
	_, ok = ref.Profile()
	assert.False(t, ok)
	assert.Equal(t, "donor:"+donorID.String(), ref.String())

	userID := NewUserID()
	profile := RefToProfile(userID)
	gotUser, ok := profile.Profile()
	require.True(t, ok)
	assert.Equal(t, userID, gotUser)
	assert.NotEqual(t, ref, profile)
}

func TestParseDonorRef(t *testing.T) {
	donorID := NewDonorID()

	ref, err := ParseDonorRef("", donorID.String())
	require.NoError(t, err)
	assert.Equal(t, RefToDonor(donorID), ref)

	ref, err = ParseDonorRef("user", donorID.String())
	require.NoError(t, err)
	assert.Equal(t, DonorKindUser, ref.Kind)

	_, err = ParseDonorRef("patient", donorID.String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseDonorRef("donor", "nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
