package server

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"lukas/inventory/internal/packet"
)

type pipePeer struct {
	conn   net.Conn
	codec  *packet.Codec
	reader *packet.StreamFrameReader
}

func (p *pipePeer) send(t *testing.T, frame []byte) {
	t.Helper()
	require.NoError(t, p.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := p.conn.Write(frame)
	require.NoError(t, err)
}

func (p *pipePeer) request(t *testing.T, pkt packet.Packet) {
	t.Helper()
	data, err := p.codec.Encode(pkt)
	require.NoError(t, err)
	p.send(t, data)
}

func (p *pipePeer) reply(t *testing.T) packet.Packet {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := p.reader.ReadFrame()
	require.NoError(t, err)
	reply, err := p.codec.Decode(frame)
	require.NoError(t, err)
	return reply
}

func newPipeConnection(t *testing.T) (*Connection, *pipePeer, chan uint64) {
	t.Helper()
	cipher, err := packet.NewCipher(packet.AlgorithmAESECB, []byte("RfUjXn2r5u8x/A%D*G-KaPdSgVkYp3s6"))
	require.NoError(t, err)
	codec := packet.NewCodec(cipher)

	serverSide, clientSide := net.Pipe()
	closed := make(chan uint64, 1)
	conn := NewConnection(7, serverSide, zap.NewNop(), ConnectionConfig{IdleTimeout: 5 * time.Second, WriteTimeout: 2 * time.Second},
		codec, NewProcessor(openTestStore(t), zap.NewNop()), func(c *Connection) {
			closed <- c.ID()
		})
	go conn.Handle(context.Background())
	t.Cleanup(func() {
		clientSide.Close()
		conn.Stop()
	})
	return conn, &pipePeer{conn: clientSide, codec: codec, reader: packet.NewStreamFrameReader(clientSide, 0, 0)}, closed
}

func waitClosed(t *testing.T, conn *Connection, closed chan uint64) {
	t.Helper()
	select {
	case id := <-closed:
		assert.Equal(t, uint64(7), id)
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	<-conn.Done()
}

// Unit Tests for Connection
func TestConnection_RequestReply(t *testing.T) {
	_, peer, _ := newPipeConnection(t)

	for seq := uint64(0); seq < 3; seq++ {
		peer.request(t, packet.Packet{Sequence: seq, Status: packet.StatusClient, Command: packet.CommandGetGroupByID, Payload: "1"})
		reply := peer.reply(t)
		assert.Equal(t, seq, reply.Sequence)
		assert.Equal(t, packet.StatusSuccess, reply.Status)
		assert.JSONEq(t, `{"groupId":1,"name":"Group1","description":"Group1"}`, reply.Payload)
	}
}

func TestConnection_CorruptFrameGetsErrorReply(t *testing.T) {
	_, peer, _ := newPipeConnection(t)

	data, err := peer.codec.Encode(packet.Packet{Sequence: 1, Status: packet.StatusClient, Command: packet.CommandGetGroups})
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	peer.send(t, data)

	reply := peer.reply(t)
	assert.Equal(t, packet.ErrorSequence, reply.Sequence)
	assert.Equal(t, packet.StatusError, reply.Status)
	assert.Equal(t, packet.CommandUnknown, reply.Command)
	assert.Equal(t, MessageError, reply.Payload)

	// the connection survives
	peer.request(t, packet.Packet{Sequence: 2, Status: packet.StatusClient, Command: packet.Command(99)})
	reply = peer.reply(t)
	assert.Equal(t, uint64(2), reply.Sequence)
	assert.Equal(t, packet.StatusUnknownOperation, reply.Status)
}

func TestConnection_BadMagicCloses(t *testing.T) {
	conn, peer, closed := newPipeConnection(t)
	peer.send(t, []byte{0x42})
	waitClosed(t, conn, closed)

	_, err := peer.reader.ReadFrame()
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe), "got %v", err)
}

func TestConnection_StopClosesWithoutReply(t *testing.T) {
	conn, peer, closed := newPipeConnection(t)
	peer.request(t, packet.Packet{Sequence: 0, Status: packet.StatusClient, Command: packet.CommandStop, Payload: "stop"})
	waitClosed(t, conn, closed)

	_, err := peer.reader.ReadFrame()
	assert.Error(t, err)
}

func TestConnection_PeerHangUp(t *testing.T) {
	conn, peer, closed := newPipeConnection(t)
	require.NoError(t, peer.conn.Close())
	waitClosed(t, conn, closed)
}

func TestConnection_Shutdown(t *testing.T) {
	conn, _, closed := newPipeConnection(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Shutdown(ctx))
	waitClosed(t, conn, closed)
}
