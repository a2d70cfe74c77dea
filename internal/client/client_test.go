package client

import (
	"context"
	"fmt"
	"math"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/server"
	"lukas/inventory/internal/stock"
)

const testKey = "RfUjXn2r5u8x/A%D*G-KaPdSgVkYp3s6"

func testCodec(t *testing.T) *packet.Codec {
	t.Helper()
	cipher, err := packet.NewCipher(packet.AlgorithmAESECB, []byte(testKey))
	require.NoError(t, err)
	return packet.NewCodec(cipher)
}

type testEnv struct {
	server *server.Server
	store  *stock.SQLiteStore
	codec  *packet.Codec
}

func startServer(t *testing.T, seed bool, workers int) *testEnv {
	t.Helper()
	return startServerWith(t, seed, workers, server.ConnectionConfig{IdleTimeout: 10 * time.Second, WriteTimeout: 2 * time.Second})
}

func startServerWith(t *testing.T, seed bool, workers int, connConfig server.ConnectionConfig) *testEnv {
	t.Helper()
	store, err := stock.OpenSQLite(context.Background(), zap.NewNop(), stock.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "stock.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	if seed {
		require.NoError(t, stock.Seed(context.Background(), store))
	}
	codec := testCodec(t)
	srv := server.NewServer(zap.NewNop(), server.ServerConfig{Addr: "127.0.0.1", Workers: workers},
		connConfig, codec, store)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return &testEnv{server: srv, store: store, codec: codec}
}

func (env *testEnv) client(t *testing.T) *Client {
	t.Helper()
	c := New(zap.NewNop(), Config{Addr: env.server.Addr().String()}, env.codec)
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

// End-to-end Tests
func TestClient_InsertThenList(t *testing.T) {
	env := startServer(t, false, 4)
	c := env.client(t)
	ctx := context.Background()

	ok, err := c.InsertGroup(ctx, stock.Group{GroupID: 0, Name: "G1", Description: "d"})
	require.NoError(t, err)
	require.True(t, ok)

	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "G1", groups[0].Name)
	assert.Equal(t, uint64(2), c.Sequence())
}

func TestClient_DecreaseBelowZero(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)
	ctx := context.Background()

	ok, err := c.DecreaseProductQuantity(ctx, 1, 31)
	require.NoError(t, err)
	assert.False(t, ok)

	product, err := c.ProductByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), product.Quantity)

	ok, err = c.DecreaseProductQuantity(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	product, err = c.ProductByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), product.Quantity)
}

func TestClient_Operations(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)
	ctx := context.Background()

	ok, err := c.InsertGroup(ctx, stock.Group{GroupID: 1, Name: "Group1", Description: "Group1"})
	require.NoError(t, err)
	assert.False(t, ok, "duplicate name")

	ok, err = c.InsertProduct(ctx, stock.Product{GroupID: 1, Name: "Product4", Description: "Product4", Producer: "Product4", Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UpdateGroup(ctx, stock.Group{GroupID: 1, Name: "TestGroup1", Description: "Group1"})
	require.NoError(t, err)
	assert.True(t, ok)
	groups, err := c.GroupsByFilter(ctx, stock.Group{GroupID: -1, Name: "TestGroup1"})
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	ok, err = c.UpdateProduct(ctx, stock.Product{ProductID: 1, GroupID: 3, Name: "Product1", Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	products, err := c.ProductsByFilter(ctx, stock.Product{ProductID: -1, GroupID: 3, Price: -1, Quantity: -1})
	require.NoError(t, err)
	assert.Len(t, products, 1)

	ok, err = c.IncreaseProductsQuantity(ctx, []int64{2, 3}, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	product, err := c.ProductByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), product.Quantity)

	ok, err = c.IncreaseProductQuantity(ctx, 3, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := c.ProductsWithGroups(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "25", rows[2][stock.JoinedQuantity])

	rows, err = c.ProductsWithGroupsByFilter(ctx, stock.Product{GroupID: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Group2", rows[0][stock.JoinedGroupName])

	group, err := c.GroupByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, stock.SeedGroups[1], group)

	ok, err = c.DeleteProduct(ctx, stock.Product{ProductID: 4})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.DeleteProductByID(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.DeleteProductsByIDs(ctx, []int64{2})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteGroup(ctx, stock.Group{GroupID: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.DeleteGroupByID(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.DeleteGroupsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	groups, err = c.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []stock.Group{{GroupID: 3, Name: "Group3", Description: "Group3"}}, groups)

	products, err = c.Products(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]stock.Product{{ProductID: 1, GroupID: 3, Name: "Product1", Price: 1, Quantity: 1}}, products); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_QueryFailureIsServerError(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)

	_, err := c.ProductByID(context.Background(), 404)
	require.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "FAILURE")
}

func TestClient_InvalidQueryNeverSent(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)

	_, err := c.InsertProduct(context.Background(), stock.Product{Name: "nan", Price: math.NaN()})
	require.ErrorIs(t, err, ErrInvalidQuery)
	assert.Zero(t, c.Sequence())
	assert.Zero(t, env.server.ConnectionCount(), "no connection is opened for an invalid query")
}

// Reliability Tests
func TestClient_ReconnectsAfterServerDropsConnection(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.server.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	env.server.CloseConnections()
	require.Eventually(t, func() bool { return env.server.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)

	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 3)
	assert.Equal(t, uint64(2), c.Sequence())
}

func TestClient_UnavailableServer(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Groups(ctx)
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(shutdownCtx))

	_, err = c.Groups(ctx)
	require.ErrorIs(t, err, ErrConnectionUnavailable)

	_, err = c.InsertGroup(ctx, stock.Group{Name: "late"})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestClient_NoServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	c := New(zap.NewNop(), Config{Addr: addr, ConnectTimeout: 200 * time.Millisecond}, testCodec(t))
	_, err = c.Groups(context.Background())
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Zero(t, c.Sequence(), "nothing reached the wire")
}

func TestClient_Stop(t *testing.T) {
	env := startServer(t, true, 4)
	c := env.client(t)
	ctx := context.Background()

	require.NoError(t, c.Stop(ctx), "stop dials when no connection is open")
	assert.Equal(t, uint64(1), c.Sequence())
	require.Eventually(t, func() bool { return env.server.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)

	_, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.server.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop(ctx))
	require.Eventually(t, func() bool { return env.server.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)

	_, err = c.Groups(ctx)
	require.NoError(t, err, "a stopped client reconnects lazily")
}

func TestClient_StopWithoutServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	c := New(zap.NewNop(), Config{Addr: addr}, testCodec(t))
	defer c.Close()
	err = c.Stop(context.Background())
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Zero(t, c.Sequence())
}

func TestClient_IdleSessionReleasesWorker(t *testing.T) {
	env := startServerWith(t, true, 1, server.ConnectionConfig{IdleTimeout: server.DefaultIdleTimeout, WriteTimeout: 2 * time.Second})
	ctx := context.Background()

	idle := env.client(t)
	_, err := idle.Groups(ctx)
	require.NoError(t, err)

	// The only worker is held by the idle session until its read deadline passes.
	busy := New(zap.NewNop(), Config{Addr: env.server.Addr().String(), ReadTimeout: 3 * time.Second}, env.codec)
	groups, err := busy.Groups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, len(stock.SeedGroups))
	require.NoError(t, busy.Close())

	groups, err = idle.Groups(ctx)
	require.NoError(t, err, "the dropped idle session reconnects")
	assert.Len(t, groups, len(stock.SeedGroups))
}

// Concurrency Tests
func TestClient_ConcurrentClients(t *testing.T) {
	const clients = 8
	const rounds = 20
	env := startServer(t, true, clients)

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := New(zap.NewNop(), Config{Addr: env.server.Addr().String(), ReadTimeout: 5 * time.Second}, env.codec)
			defer c.Close()
			ctx := context.Background()
			name := fmt.Sprintf("client-%d", i)
			if ok, err := c.InsertGroup(ctx, stock.Group{Name: name}); err != nil || !ok {
				errs <- fmt.Errorf("%s: insert: %v %v", name, ok, err)
				return
			}
			for r := 0; r < rounds; r++ {
				ok, err := c.IncreaseProductQuantity(ctx, 3, 1)
				if err != nil || !ok {
					errs <- fmt.Errorf("%s: round %d: %v %v", name, r, ok, err)
					return
				}
			}
			groups, err := c.GroupsByFilter(ctx, stock.Group{Name: name})
			if err != nil || len(groups) != 1 {
				errs <- fmt.Errorf("%s: own group: %v %v", name, groups, err)
				return
			}
			if c.Sequence() != rounds+2 {
				errs <- fmt.Errorf("%s: sequence %d", name, c.Sequence())
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	product, err := env.store.ProductByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10+clients*rounds), product.Quantity)
}
