package auth

// Role is the capability level resolved once at profile-load time.
// All permission checks in the client go through this enum instead of
// probing individual profile fields.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSuperAdmin
)

func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "superadmin"
	case RoleAdmin:
		return "admin"
	default:
		return "user"
	}
}

// User is the profile returned by GET /auth/me/.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	IsActive  bool   `json:"is_active"`

	// Legacy top-level flags still emitted by older server builds.
	IsSuperuser bool `json:"is_superuser"`
	IsStaff     bool `json:"is_staff"`

	Roles    RoleFlags    `json:"roles"`
	Security SecurityInfo `json:"security"`
}

// RoleFlags is the server's role block on the profile.
type RoleFlags struct {
	List        []string `json:"list"`
	IsAdmin     bool     `json:"is_admin"`
	IsSuperuser bool     `json:"is_superuser"`
	IsStaff     bool     `json:"is_staff"`
}

// SecurityInfo is the server's security block on the profile.
type SecurityInfo struct {
	EmailVerified bool `json:"email_verified"`
}

// resolveRole maps the profile's permissive, multi-field role shape to a
// single capability level. This is the only place those fields are read.
func resolveRole(u *User) Role {
	if u == nil {
		return RoleUser
	}
	if u.IsSuperuser || u.Roles.IsSuperuser {
		return RoleSuperAdmin
	}
	if u.Roles.IsAdmin || u.IsStaff || u.Roles.IsStaff {
		return RoleAdmin
	}
	for _, r := range u.Roles.List {
		if r == "admin" {
			return RoleAdmin
		}
	}
	return RoleUser
}
