package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "transplant/pkg/domain-errors"
)

func TestNotification_Validate(t *testing.T) {
	rel := Related{EntityType: "request", EntityID: "REQ-2026-000001"}

	tests := []struct {
		name  string
		n     Notification
		valid bool
	}{
		{"hospital with recipient", ToHospital("h-1", TypeEmergency, "Critical", "msg", rel), true},
		{"donor with recipient", ToDonor("u-1", TypeMatchFound, "Matched", "msg", rel), true},
		{"admin broadcast", ToAdmins(TypeSystem, "Critical", "msg", rel), true},
		{"hospital without recipient", ToHospital("", TypeEmergency, "Critical", "msg", rel), false},
		{"broadcast with recipient", Notification{Audience: AudienceAdminBroadcast, RecipientID: "x", Title: "t"}, false},
		{"unknown audience", Notification{Audience: "everyone", Title: "t"}, false},
		{"missing title", ToAdmins(TypeSystem, "", "msg", rel), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.n.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}
