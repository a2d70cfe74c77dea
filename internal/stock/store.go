package stock

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("stock: record not found")

// ErrNotInserted reports an insert that completed without adding a row.
var ErrNotInserted = errors.New("stock: no row inserted")

// Store is the storage contract the server dispatches into. Mutations return
// the number of affected rows. Implementations must be safe for concurrent use.
type Store interface {
	InsertGroup(ctx context.Context, group Group) (int, error)
	InsertProduct(ctx context.Context, product Product) (int, error)
	UpdateGroup(ctx context.Context, group Group) (int, error)
	UpdateProduct(ctx context.Context, product Product) (int, error)
	DeleteGroup(ctx context.Context, group Group) (int, error)
	DeleteProduct(ctx context.Context, product Product) (int, error)

	Groups(ctx context.Context) ([]Group, error)
	Products(ctx context.Context) ([]Product, error)
	GroupsByFilter(ctx context.Context, filter Group) ([]Group, error)
	ProductsByFilter(ctx context.Context, filter Product) ([]Product, error)
	GroupByID(ctx context.Context, id int64) (Group, error)
	ProductByID(ctx context.Context, id int64) (Product, error)

	DeleteGroupByID(ctx context.Context, id int64) (int, error)
	DeleteProductByID(ctx context.Context, id int64) (int, error)
	DeleteGroupsByIDs(ctx context.Context, ids []int64) (int, error)
	DeleteProductsByIDs(ctx context.Context, ids []int64) (int, error)

	ProductsWithGroups(ctx context.Context) ([]JoinedProduct, error)
	ProductsWithGroupsByFilter(ctx context.Context, filter Product) ([]JoinedProduct, error)

	IncreaseProductQuantity(ctx context.Context, id int64, amount int64) (int, error)
	IncreaseProductsQuantity(ctx context.Context, ids []int64, amount int64) (int, error)
	DecreaseProductQuantity(ctx context.Context, id int64, amount int64) (int, error)

	Close() error
}
