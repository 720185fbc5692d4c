package testutil

import (
	"net/http"

	id "transplant/pkg/domain"
	"transplant/pkg/requestcontext"
)

// WithActor places an authenticated actor in the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithHospitalStaff authenticates the request as staff of the given hospital.
func WithHospitalStaff(req *http.Request, hospitalID id.HospitalID) *http.Request {
	return WithActor(req, HospitalStaff(hospitalID))
}

// WithAdmin authenticates the request as an administrator.
func WithAdmin(req *http.Request) *http.Request {
	return WithActor(req, Admin())
}

// HospitalStaff returns a hospital actor with a fresh user id.
func HospitalStaff(hospitalID id.HospitalID) id.Actor {
	return id.Actor{ID: id.NewUserID(), Name: "staff", Role: id.RoleHospital, HospitalID: hospitalID}
}

// Admin returns an administrator actor with a fresh user id.
func Admin() id.Actor {
	return id.Actor{ID: id.NewUserID(), Name: "admin", Role: id.RoleAdmin}
}

// DonorAccount returns a donor-role actor for the given user.
func DonorAccount(userID id.UserID) id.Actor {
	return id.Actor{ID: userID, Name: "donor", Role: id.RoleDonor}
}
