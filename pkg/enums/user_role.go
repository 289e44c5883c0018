package enums

import "slices"

// UserRole is the coarse role carried in access tokens.
type UserRole string

const (
	UserRoleGuest        UserRole = "guest"
	UserRoleHotelManager UserRole = "hotel_manager"
	UserRoleAdmin        UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleGuest,
	UserRoleHotelManager,
	UserRoleAdmin,
}

func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	return slices.Contains(validUserRoles, r)
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", validUserRoles, value)
}
