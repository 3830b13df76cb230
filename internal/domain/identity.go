package domain

// Role is the marketplace role carried by an authenticated identity.
type Role string

const (
	RoleShipper  Role = "shipper"
	RoleTraveler Role = "traveler"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleShipper || r == RoleTraveler
}

// Identity is the authenticated principal of a connection. It never changes
// once a connection is authenticated.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}
