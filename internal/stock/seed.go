package stock

import (
	"context"
	"fmt"
)

var SeedGroups = []Group{
	{GroupID: 1, Name: "Group1", Description: "Group1"},
	{GroupID: 2, Name: "Group2", Description: "Group2"},
	{GroupID: 3, Name: "Group3", Description: "Group3"},
}

var SeedProducts = []Product{
	{ProductID: 1, GroupID: 1, Name: "Product1", Description: "Product1", Producer: "Product1", Price: 1.5, Quantity: 30},
	{ProductID: 2, GroupID: 1, Name: "Product2", Description: "Product2", Producer: "Product2", Price: 2.5, Quantity: 20},
	{ProductID: 3, GroupID: 2, Name: "Product3", Description: "Product3", Producer: "Product3", Price: 3.5, Quantity: 10},
}

// Seed inserts the fixture records into an empty store. Ids are assigned by the
// store, so the fixture ids only line up on a fresh database.
func Seed(ctx context.Context, store Store) error {
	for _, group := range SeedGroups {
		n, err := store.InsertGroup(ctx, group)
		if err != nil {
			return fmt.Errorf("stock: seeding group %q: %w", group.Name, err)
		} else if n == 0 {
			return fmt.Errorf("stock: seeding group %q: %w", group.Name, ErrNotInserted)
		}
	}
	for _, product := range SeedProducts {
		n, err := store.InsertProduct(ctx, product)
		if err != nil {
			return fmt.Errorf("stock: seeding product %q: %w", product.Name, err)
		} else if n == 0 {
			return fmt.Errorf("stock: seeding product %q: %w", product.Name, ErrNotInserted)
		}
	}
	return nil
}
