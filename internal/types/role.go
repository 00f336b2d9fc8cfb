// README: Marketplace roles.
package types

type Role string

const (
	RoleClient     Role = "client"
	RoleDriver     Role = "driver"
	RoleStoreOwner Role = "store_owner"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDriver, RoleStoreOwner, RoleAdmin:
		return true
	}
	return false
}
