package model

// Role gates what a caller may see and change.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// User is a person who can act on the ledger. WarehouseID is required for
// employees and ignored for admins.
type User struct {
	ID          int64  `json:"id" db:"id"`
	NationalID  string `json:"national_id" db:"national_id"`
	Name        string `json:"name" db:"name"`
	Role        Role   `json:"role" db:"role"`
	WarehouseID *int64 `json:"warehouse_id,omitempty" db:"warehouse_id"`
}

// Identity is the resolved caller of an operation.
type Identity struct {
	UserID      int64  `json:"user_id"`
	Role        Role   `json:"role"`
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
}

// IdentityOf builds the caller identity for u.
func IdentityOf(u *User) *Identity {
	id := &Identity{UserID: u.ID, Role: u.Role}
	if u.Role == RoleEmployee && u.WarehouseID != nil {
		wh := *u.WarehouseID
		id.WarehouseID = &wh
	}
	return id
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
