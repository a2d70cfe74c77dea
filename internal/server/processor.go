package server

import (
	"context"
	"encoding/json"
	"errors"
	"go.uber.org/zap"
	"io"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/stock"
	"strings"
)

const (
	MessageSuccess          = "success"
	MessageFailure          = "failure"
	MessageError            = "error"
	MessageUnknownOperation = "unknown operation"
)

const errTrailingData = stringError("trailing data after payload")

type stringError string

func (e stringError) Error() string {
	return string(e)
}

type handler func(ctx context.Context, payload string) (packet.Status, string)

// Processor executes decoded requests against the store and builds replies.
type Processor struct {
	store    stock.Store
	logger   *zap.Logger
	handlers map[packet.Command]handler
}

func NewProcessor(store stock.Store, logger *zap.Logger) *Processor {
	p := &Processor{store: store, logger: logger}
	p.handlers = map[packet.Command]handler{
		packet.CommandInsertGroup:         mutation(p, store.InsertGroup),
		packet.CommandInsertProduct:       mutation(p, store.InsertProduct),
		packet.CommandUpdateGroup:         mutation(p, store.UpdateGroup),
		packet.CommandUpdateProduct:       mutation(p, store.UpdateProduct),
		packet.CommandDeleteGroup:         mutation(p, store.DeleteGroup),
		packet.CommandDeleteProduct:       mutation(p, store.DeleteProduct),
		packet.CommandDeleteGroupByID:     mutation(p, store.DeleteGroupByID),
		packet.CommandDeleteProductByID:   mutation(p, store.DeleteProductByID),
		packet.CommandDeleteGroupsByIDs:   mutation(p, store.DeleteGroupsByIDs),
		packet.CommandDeleteProductsByIDs: mutation(p, store.DeleteProductsByIDs),
		packet.CommandIncreaseProductQuantity: mutation(p, func(ctx context.Context, c stock.QuantityChange) (int, error) {
			return store.IncreaseProductQuantity(ctx, c.First, c.Second)
		}),
		packet.CommandIncreaseProductsQuantity: mutation(p, func(ctx context.Context, c stock.QuantitiesChange) (int, error) {
			return store.IncreaseProductsQuantity(ctx, c.First, c.Second)
		}),
		packet.CommandDecreaseProductQuantity: mutation(p, func(ctx context.Context, c stock.QuantityChange) (int, error) {
			return store.DecreaseProductQuantity(ctx, c.First, c.Second)
		}),

		packet.CommandGetGroups:                  listing(p, store.Groups),
		packet.CommandGetProducts:                listing(p, store.Products),
		packet.CommandGetProductsInnerJoinGroups: listing(p, store.ProductsWithGroups),

		packet.CommandGetGroupsByFilter:                  lookup(p, store.GroupsByFilter),
		packet.CommandGetProductsByFilter:                lookup(p, store.ProductsByFilter),
		packet.CommandGetGroupByID:                       lookup(p, store.GroupByID),
		packet.CommandGetProductByID:                     lookup(p, store.ProductByID),
		packet.CommandGetProductsInnerJoinGroupsByFilter: lookup(p, store.ProductsWithGroupsByFilter),
	}
	return p
}

// Process returns the reply for request. The second result is false when no
// reply must be sent and the connection should be closed.
func (p *Processor) Process(ctx context.Context, request packet.Packet) (packet.Packet, bool) {
	if request.Status != packet.StatusClient {
		return request, true
	}
	if request.Command == packet.CommandStop {
		return packet.Packet{}, false
	}
	h, ok := p.handlers[request.Command]
	if !ok {
		p.logger.Debug("unknown operation", zap.Stringer("command", request.Command))
		return request.Reply(packet.StatusUnknownOperation, MessageUnknownOperation), true
	}
	status, payload := h(ctx, request.Payload)
	return request.Reply(status, payload), true
}

func decodePayload(payload string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func mutation[T any](p *Processor, fn func(context.Context, T) (int, error)) handler {
	return func(ctx context.Context, payload string) (packet.Status, string) {
		var arg T
		if err := decodePayload(payload, &arg); err != nil {
			p.logger.Debug("malformed payload", zap.Error(err))
			return packet.StatusError, MessageError
		}
		rows, err := fn(ctx, arg)
		if err != nil {
			p.logger.Debug("store rejected mutation", zap.Error(err))
			return packet.StatusFailure, MessageFailure
		}
		if rows <= 0 {
			return packet.StatusFailure, MessageFailure
		}
		return packet.StatusSuccess, MessageSuccess
	}
}

func listing[R any](p *Processor, fn func(context.Context) (R, error)) handler {
	return func(ctx context.Context, _ string) (packet.Status, string) {
		result, err := fn(ctx)
		if err != nil {
			p.logger.Warn("store query failed", zap.Error(err))
			return packet.StatusFailure, MessageFailure
		}
		return p.encodeResult(result)
	}
}

func lookup[T, R any](p *Processor, fn func(context.Context, T) (R, error)) handler {
	return func(ctx context.Context, payload string) (packet.Status, string) {
		var arg T
		if err := decodePayload(payload, &arg); err != nil {
			p.logger.Debug("malformed payload", zap.Error(err))
			return packet.StatusError, MessageError
		}
		result, err := fn(ctx, arg)
		if errors.Is(err, stock.ErrNotFound) {
			return packet.StatusFailure, MessageFailure
		} else if err != nil {
			p.logger.Warn("store query failed", zap.Error(err))
			return packet.StatusFailure, MessageFailure
		}
		return p.encodeResult(result)
	}
}

func (p *Processor) encodeResult(result any) (packet.Status, string) {
	data, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("failed to encode result", zap.Error(err))
		return packet.StatusError, MessageError
	}
	return packet.StatusSuccess, string(data)
}
