package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/stock"
)

// fakeServer answers every request on a single connection with respond(request).
func fakeServer(t *testing.T, codec *packet.Codec, respond func(packet.Packet) []byte) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				reader := packet.NewStreamFrameReader(conn, 0, 0)
				for {
					frame, err := reader.ReadFrame()
					if err != nil {
						return
					}
					request, err := codec.Decode(frame)
					if err != nil {
						return
					}
					if _, err := conn.Write(respond(request)); err != nil {
						return
					}
				}
			}()
		}
	}()
	return listener.Addr().String()
}

func encode(t *testing.T, codec *packet.Codec, p packet.Packet) []byte {
	data, err := codec.Encode(p)
	require.NoError(t, err)
	return data
}

func TestClient_RejectsUncorrelatedReply(t *testing.T) {
	codec := testCodec(t)
	addr := fakeServer(t, codec, func(req packet.Packet) []byte {
		return encode(t, codec, packet.Packet{Sequence: req.Sequence + 100, Status: packet.StatusSuccess, Command: req.Command, Payload: "[]"})
	})
	c := New(zap.NewNop(), Config{Addr: addr}, codec)
	defer c.Close()

	_, err := c.Groups(context.Background())
	require.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "sequence")
}

func TestClient_ErrorStatusReply(t *testing.T) {
	codec := testCodec(t)
	addr := fakeServer(t, codec, func(req packet.Packet) []byte {
		return encode(t, codec, packet.Packet{Sequence: packet.ErrorSequence, Status: packet.StatusError, Command: packet.CommandUnknown, Payload: "error"})
	})
	c := New(zap.NewNop(), Config{Addr: addr}, codec)
	defer c.Close()

	_, err := c.InsertGroup(context.Background(), stock.Group{Name: "x"})
	require.ErrorIs(t, err, ErrServerError)
	_, err = c.Groups(context.Background())
	require.ErrorIs(t, err, ErrServerError)
}

func TestClient_CorruptReply(t *testing.T) {
	codec := testCodec(t)
	addr := fakeServer(t, codec, func(req packet.Packet) []byte {
		data := encode(t, codec, req.Reply(packet.StatusSuccess, "success"))
		data[len(data)-1] ^= 0xFF
		return data
	})
	c := New(zap.NewNop(), Config{Addr: addr}, codec)
	defer c.Close()

	_, err := c.DeleteGroupByID(context.Background(), 1)
	require.ErrorIs(t, err, ErrServerError)
	require.ErrorIs(t, err, packet.ErrIntegrity)
}

func TestClient_MalformedResult(t *testing.T) {
	codec := testCodec(t)
	addr := fakeServer(t, codec, func(req packet.Packet) []byte {
		return encode(t, codec, req.Reply(packet.StatusSuccess, "{not json"))
	})
	c := New(zap.NewNop(), Config{Addr: addr}, codec)
	defer c.Close()

	_, err := c.Products(context.Background())
	require.ErrorIs(t, err, ErrServerError)
}

func TestClient_SilentServerRetriesOnceThenFails(t *testing.T) {
	codec := testCodec(t)
	requests := make(chan packet.Packet, 4)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				frame, err := packet.NewStreamFrameReader(conn, 0, 0).ReadFrame()
				if err != nil {
					return
				}
				request, _ := codec.Decode(frame)
				requests <- request
				time.Sleep(time.Second)
			}()
		}
	}()

	c := New(zap.NewNop(), Config{Addr: listener.Addr().String(), ReadTimeout: 100 * time.Millisecond}, codec)
	defer c.Close()

	_, err = c.GroupByID(context.Background(), 5)
	require.ErrorIs(t, err, ErrConnectionUnavailable)

	first, second := <-requests, <-requests
	assert.Equal(t, first, second, "the same request is resent after reconnecting")
	assert.Equal(t, uint64(1), c.Sequence())
}

func TestClient_Do(t *testing.T) {
	codec := testCodec(t)
	addr := fakeServer(t, codec, func(req packet.Packet) []byte {
		return encode(t, codec, req.Reply(packet.StatusUnknownOperation, "unknown operation"))
	})
	c := New(zap.NewNop(), Config{Addr: addr}, codec)
	defer c.Close()

	reply, err := c.Do(context.Background(), packet.Command(40), "")
	require.NoError(t, err)
	assert.Equal(t, packet.StatusUnknownOperation, reply.Status)
	assert.Equal(t, uint64(0), reply.Sequence)
	assert.Equal(t, uint64(1), c.Sequence())
}
