// Package notification delivers best-effort messages to hospitals, donors,
// and administrators. Delivery never blocks or fails the triggering operation.
package notification

import (
	"context"
	"strings"

	dErrors "transplant/pkg/domain-errors"
)

// Audience says who a notification is for. AdminBroadcast replaces the
// "no recipient means everyone with the admin role" convention.
type Audience string

const (
	AudienceHospital       Audience = "hospital"
	AudienceDonor          Audience = "donor"
	AudienceAdminBroadcast Audience = "admin_broadcast"
)

type Type string

const (
	TypeEmergency       Type = "EMERGENCY"
	TypeSystem          Type = "SYSTEM"
	TypeMatchFound      Type = "MATCH_FOUND"
	TypeSurgery         Type = "SURGERY_SCHEDULED"
	TypeSLABreach       Type = "SLA_BREACH"
	TypeRequestClosed   Type = "REQUEST_CLOSED"
	TypeConsentRequest  Type = "CONSENT_REQUEST"
	TypeConsentResponse Type = "CONSENT_RESPONSE"
)

// Related points at the entity a notification is about.
type Related struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type Notification struct {
	Audience    Audience `json:"audience"`
	RecipientID string   `json:"recipient_id,omitempty"`
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Related     Related  `json:"related"`
}

// Validate rejects broadcasts with a recipient and targeted messages without one.
func (n Notification) Validate() error {
	switch n.Audience {
	case AudienceAdminBroadcast:
		if n.RecipientID != "" {
			return dErrors.New(dErrors.CodeValidation, "admin broadcast must not name a recipient")
		}
	case AudienceHospital, AudienceDonor:
		if strings.TrimSpace(n.RecipientID) == "" {
			return dErrors.New(dErrors.CodeValidation, "targeted notification requires a recipient")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown audience")
	}
	if strings.TrimSpace(n.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "notification title is required")
	}
	return nil
}

// Sink delivers one notification.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

func ToHospital(hospitalID string, typ Type, title, message string, related Related) Notification {
	return Notification{Audience: AudienceHospital, RecipientID: hospitalID, Type: typ, Title: title, Message: message, Related: related}
}

func ToDonor(recipientID string, typ Type, title, message string, related Related) Notification {
	return Notification{Audience: AudienceDonor, RecipientID: recipientID, Type: typ, Title: title, Message: message, Related: related}
}

func ToAdmins(typ Type, title, message string, related Related) Notification {
	return Notification{Audience: AudienceAdminBroadcast, Type: typ, Title: title, Message: message, Related: related}
}
