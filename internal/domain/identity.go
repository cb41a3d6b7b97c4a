package domain

// SubjectID is the stable identity of an authenticated principal (JWT `sub`).
type SubjectID string

// Role classifies a principal for push addressing and diagnostics.
type Role string

const (
	RoleCustomer Role = "customer"
	RolePartner  Role = "partner"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RolePartner, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated principal attached to a request or socket.
type Identity struct {
	Subject SubjectID
	Role    Role
}
