package client

import (
	"context"
	"encoding/json"
	"fmt"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/stock"
)

func encodeArgument(arg any) (string, error) {
	if arg == nil {
		return "", nil
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return string(data), nil
}

// mutate reports true on SUCCESS and false on FAILURE.
func (c *Client) mutate(ctx context.Context, command packet.Command, arg any) (bool, error) {
	payload, err := encodeArgument(arg)
	if err != nil {
		return false, err
	}
	reply, err := c.roundTrip(ctx, command, payload)
	if err != nil {
		return false, err
	}
	switch reply.Status {
	case packet.StatusSuccess:
		return true, nil
	case packet.StatusFailure:
		return false, nil
	default:
		return false, unexpectedReply(reply)
	}
}

// query decodes a SUCCESS reply into R. Every other status is a server error.
func query[R any](ctx context.Context, c *Client, command packet.Command, arg any) (R, error) {
	var result R
	payload, err := encodeArgument(arg)
	if err != nil {
		return result, err
	}
	reply, err := c.roundTrip(ctx, command, payload)
	if err != nil {
		return result, err
	}
	if reply.Status != packet.StatusSuccess {
		return result, unexpectedReply(reply)
	}
	if err = json.Unmarshal([]byte(reply.Payload), &result); err != nil {
		return result, fmt.Errorf("%w: malformed %s result: %v", ErrServerError, command, err)
	}
	return result, nil
}

func (c *Client) InsertGroup(ctx context.Context, group stock.Group) (bool, error) {
	return c.mutate(ctx, packet.CommandInsertGroup, group)
}

func (c *Client) InsertProduct(ctx context.Context, product stock.Product) (bool, error) {
	return c.mutate(ctx, packet.CommandInsertProduct, product)
}

func (c *Client) UpdateGroup(ctx context.Context, group stock.Group) (bool, error) {
	return c.mutate(ctx, packet.CommandUpdateGroup, group)
}

func (c *Client) UpdateProduct(ctx context.Context, product stock.Product) (bool, error) {
	return c.mutate(ctx, packet.CommandUpdateProduct, product)
}

// DeleteGroup deletes by group.GroupID; products in the group go with it.
func (c *Client) DeleteGroup(ctx context.Context, group stock.Group) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteGroup, group)
}

func (c *Client) DeleteProduct(ctx context.Context, product stock.Product) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteProduct, product)
}

func (c *Client) DeleteGroupByID(ctx context.Context, id int64) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteGroupByID, id)
}

func (c *Client) DeleteProductByID(ctx context.Context, id int64) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteProductByID, id)
}

func (c *Client) DeleteGroupsByIDs(ctx context.Context, ids []int64) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteGroupsByIDs, nonNil(ids))
}

func (c *Client) DeleteProductsByIDs(ctx context.Context, ids []int64) (bool, error) {
	return c.mutate(ctx, packet.CommandDeleteProductsByIDs, nonNil(ids))
}

func (c *Client) IncreaseProductQuantity(ctx context.Context, id int64, amount int64) (bool, error) {
	return c.mutate(ctx, packet.CommandIncreaseProductQuantity, stock.QuantityChange{First: id, Second: amount})
}

func (c *Client) IncreaseProductsQuantity(ctx context.Context, ids []int64, amount int64) (bool, error) {
	return c.mutate(ctx, packet.CommandIncreaseProductsQuantity, stock.QuantitiesChange{First: nonNil(ids), Second: amount})
}

// DecreaseProductQuantity returns false when the product has fewer than amount units.
func (c *Client) DecreaseProductQuantity(ctx context.Context, id int64, amount int64) (bool, error) {
	return c.mutate(ctx, packet.CommandDecreaseProductQuantity, stock.QuantityChange{First: id, Second: amount})
}

func (c *Client) Groups(ctx context.Context) ([]stock.Group, error) {
	return query[[]stock.Group](ctx, c, packet.CommandGetGroups, nil)
}

func (c *Client) Products(ctx context.Context) ([]stock.Product, error) {
	return query[[]stock.Product](ctx, c, packet.CommandGetProducts, nil)
}

func (c *Client) GroupsByFilter(ctx context.Context, filter stock.Group) ([]stock.Group, error) {
	return query[[]stock.Group](ctx, c, packet.CommandGetGroupsByFilter, filter)
}

func (c *Client) ProductsByFilter(ctx context.Context, filter stock.Product) ([]stock.Product, error) {
	return query[[]stock.Product](ctx, c, packet.CommandGetProductsByFilter, filter)
}

// GroupByID fails with ErrServerError when no such group exists.
func (c *Client) GroupByID(ctx context.Context, id int64) (stock.Group, error) {
	return query[stock.Group](ctx, c, packet.CommandGetGroupByID, id)
}

func (c *Client) ProductByID(ctx context.Context, id int64) (stock.Product, error) {
	return query[stock.Product](ctx, c, packet.CommandGetProductByID, id)
}

func (c *Client) ProductsWithGroups(ctx context.Context) ([]stock.JoinedProduct, error) {
	return query[[]stock.JoinedProduct](ctx, c, packet.CommandGetProductsInnerJoinGroups, nil)
}

func (c *Client) ProductsWithGroupsByFilter(ctx context.Context, filter stock.Product) ([]stock.JoinedProduct, error) {
	return query[[]stock.JoinedProduct](ctx, c, packet.CommandGetProductsInnerJoinGroupsByFilter, filter)
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// Do sends a raw payload for command and returns the reply as received. Replies
// with any status are returned without error.
func (c *Client) Do(ctx context.Context, command packet.Command, payload string) (packet.Packet, error) {
	return c.roundTrip(ctx, command, payload)
}
