package domain

// Role is the capability an authenticated actor carries.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHospital Role = "hospital"
	RoleDonor    Role = "donor"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleHospital || r == RoleDonor
}

// Actor is the authenticated caller of an operation. The identity gate
// produces it; services trust it as given.
//
// HospitalID is set for hospital staff. Admins and donors leave it nil.
type Actor struct {
	ID         UserID
	Name       string
	Role       Role
	HospitalID HospitalID
}

// SystemActor performs background transitions such as expiry.
var SystemActor = Actor{Name: "system", Role: RoleAdmin}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// ActsFor reports whether the actor may operate on resources owned by hospital.
// Admins act for every hospital.
func (a Actor) ActsFor(hospital HospitalID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleHospital && !a.HospitalID.IsNil() && a.HospitalID == hospital
}
