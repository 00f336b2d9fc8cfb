// README: Read models for users, stores and products owned by the marketplace CRUD side.
package directory

import (
	"github.com/shopspring/decimal"

	"foodline/internal/types"
)

type User struct {
	ID              types.ID
	Name            string
	Role            types.Role
	Approved        bool
	Available       bool
	TotalDeliveries int
	TotalEarnings   decimal.Decimal
}

// Shop is a row of the stores table.
type Shop struct {
	ID          types.ID
	OwnerID     types.ID
	Name        string
	IsOpen      bool
	MinOrder    decimal.Decimal
	DeliveryFee decimal.Decimal
}

type Product struct {
	ID        types.ID
	StoreID   types.ID
	Name      string
	Price     decimal.Decimal
	Available bool
}
