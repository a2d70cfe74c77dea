package stock

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"runtime"
	"strings"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	group_id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_name TEXT NOT NULL UNIQUE,
	group_description TEXT
);
CREATE TABLE IF NOT EXISTS products (
	product_id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id INTEGER NOT NULL,
	product_name TEXT NOT NULL UNIQUE,
	product_description TEXT,
	producer TEXT,
	price DOUBLE DEFAULT 0,
	quantity INTEGER DEFAULT 0,
	FOREIGN KEY (group_id) REFERENCES groups (group_id)
		ON DELETE CASCADE
		ON UPDATE NO ACTION
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

const productColumns = "product_id, group_id, product_name, product_description, producer, price, quantity"
const joinedColumns = "product_id, group_name, product_name, product_description, producer, price, quantity"

type SQLiteConfig struct {
	// Path of the database file, created if missing.
	Path string
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a pool of SQLite connections.
type SQLiteStore struct {
	pool   *sqlitex.Pool
	logger *zap.Logger
	path   string
}

func OpenSQLite(ctx context.Context, logger *zap.Logger, config SQLiteConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("stock: database path is required")
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}
	pool, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("stock: opening %s: %w", config.Path, err)
	}
	s := &SQLiteStore{pool: pool, logger: logger, path: config.Path}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("stock: take connection: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("stock: creating schema: %w", err)
	}
	logger.Debug("sqlite store opened", zap.String("path", config.Path), zap.Int("poolSize", poolSize))
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("stock: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("error closing sqlite store", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("stock: closing %s: %w", s.path, err)
	}
	return nil
}

// exec runs a statement and reports how many rows it changed. Statements built
// at runtime (variable IN lists) skip the statement cache.
func (s *SQLiteStore) exec(ctx context.Context, transient bool, query string, args ...any) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("stock: take connection: %w", err)
	}
	defer s.pool.Put(conn)
	options := &sqlitex.ExecOptions{Args: args}
	if transient {
		err = sqlitex.ExecuteTransient(conn, query, options)
	} else {
		err = sqlitex.Execute(conn, query, options)
	}
	if err != nil {
		return 0, err
	}
	return conn.Changes(), nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args []any, row func(stmt *sqlite.Stmt) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("stock: take connection: %w", err)
	}
	defer s.pool.Put(conn)
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args, ResultFunc: row})
}

func (s *SQLiteStore) InsertGroup(ctx context.Context, group Group) (int, error) {
	n, err := s.exec(ctx, false, "INSERT INTO groups (group_name, group_description) VALUES (?, ?)",
		group.Name, group.Description)
	if err != nil {
		return 0, fmt.Errorf("stock: insert group %q: %w", group.Name, err)
	}
	return n, nil
}

func (s *SQLiteStore) InsertProduct(ctx context.Context, product Product) (int, error) {
	n, err := s.exec(ctx, false, `INSERT INTO products (group_id, product_name, product_description, producer, price, quantity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		product.GroupID, product.Name, product.Description, product.Producer, product.Price, product.Quantity)
	if err != nil {
		return 0, fmt.Errorf("stock: insert product %q: %w", product.Name, err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateGroup(ctx context.Context, group Group) (int, error) {
	n, err := s.exec(ctx, false, "UPDATE groups SET group_name = ?, group_description = ? WHERE group_id = ?",
		group.Name, group.Description, group.GroupID)
	if err != nil {
		return 0, fmt.Errorf("stock: update group %d: %w", group.GroupID, err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, product Product) (int, error) {
	n, err := s.exec(ctx, false, `UPDATE products
		SET group_id = ?, product_name = ?, product_description = ?, producer = ?, price = ?, quantity = ?
		WHERE product_id = ?`,
		product.GroupID, product.Name, product.Description, product.Producer, product.Price, product.Quantity, product.ProductID)
	if err != nil {
		return 0, fmt.Errorf("stock: update product %d: %w", product.ProductID, err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, group Group) (int, error) {
	return s.DeleteGroupByID(ctx, group.GroupID)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, product Product) (int, error) {
	return s.DeleteProductByID(ctx, product.ProductID)
}

func (s *SQLiteStore) DeleteGroupByID(ctx context.Context, id int64) (int, error) {
	n, err := s.exec(ctx, false, "DELETE FROM groups WHERE group_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("stock: delete group %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteProductByID(ctx context.Context, id int64) (int, error) {
	n, err := s.exec(ctx, false, "DELETE FROM products WHERE product_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("stock: delete product %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteGroupsByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.exec(ctx, true, "DELETE FROM groups WHERE group_id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("stock: delete groups: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteProductsByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.exec(ctx, true, "DELETE FROM products WHERE product_id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("stock: delete products: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Groups(ctx context.Context) ([]Group, error) {
	groups := make([]Group, 0)
	err := s.query(ctx, "SELECT group_id, group_name, group_description FROM groups ORDER BY group_id", nil, func(stmt *sqlite.Stmt) error {
		groups = append(groups, scanGroup(stmt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stock: list groups: %w", err)
	}
	return groups, nil
}

func (s *SQLiteStore) Products(ctx context.Context) ([]Product, error) {
	products := make([]Product, 0)
	err := s.query(ctx, "SELECT "+productColumns+" FROM products ORDER BY product_id", nil, func(stmt *sqlite.Stmt) error {
		products = append(products, scanProduct(stmt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stock: list products: %w", err)
	}
	return products, nil
}

// GroupsByFilter matches with LIKE; id <= 0 and empty strings match anything.
func (s *SQLiteStore) GroupsByFilter(ctx context.Context, filter Group) ([]Group, error) {
	groups := make([]Group, 0)
	err := s.query(ctx, `SELECT group_id, group_name, group_description FROM groups
		WHERE group_id LIKE ? AND group_name LIKE ? AND group_description LIKE ?
		ORDER BY group_id`,
		[]any{likeID(filter.GroupID), likeText(filter.Name), likeText(filter.Description)},
		func(stmt *sqlite.Stmt) error {
			groups = append(groups, scanGroup(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("stock: filter groups: %w", err)
	}
	return groups, nil
}

func (s *SQLiteStore) ProductsByFilter(ctx context.Context, filter Product) ([]Product, error) {
	products := make([]Product, 0)
	err := s.query(ctx, "SELECT "+productColumns+" FROM products "+productFilter("group_id"), productFilterArgs(filter),
		func(stmt *sqlite.Stmt) error {
			products = append(products, scanProduct(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("stock: filter products: %w", err)
	}
	return products, nil
}

func (s *SQLiteStore) GroupByID(ctx context.Context, id int64) (Group, error) {
	var group Group
	found := false
	err := s.query(ctx, "SELECT group_id, group_name, group_description FROM groups WHERE group_id = ?", []any{id},
		func(stmt *sqlite.Stmt) error {
			group, found = scanGroup(stmt), true
			return nil
		})
	if err != nil {
		return Group{}, fmt.Errorf("stock: get group %d: %w", id, err)
	}
	if !found {
		return Group{}, ErrNotFound
	}
	return group, nil
}

func (s *SQLiteStore) ProductByID(ctx context.Context, id int64) (Product, error) {
	var product Product
	found := false
	err := s.query(ctx, "SELECT "+productColumns+" FROM products WHERE product_id = ?", []any{id},
		func(stmt *sqlite.Stmt) error {
			product, found = scanProduct(stmt), true
			return nil
		})
	if err != nil {
		return Product{}, fmt.Errorf("stock: get product %d: %w", id, err)
	}
	if !found {
		return Product{}, ErrNotFound
	}
	return product, nil
}

func (s *SQLiteStore) ProductsWithGroups(ctx context.Context) ([]JoinedProduct, error) {
	rows := make([]JoinedProduct, 0)
	err := s.query(ctx, "SELECT "+joinedColumns+" FROM products INNER JOIN groups ON products.group_id = groups.group_id ORDER BY product_id",
		nil, func(stmt *sqlite.Stmt) error {
			rows = append(rows, scanJoined(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("stock: join products: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) ProductsWithGroupsByFilter(ctx context.Context, filter Product) ([]JoinedProduct, error) {
	rows := make([]JoinedProduct, 0)
	err := s.query(ctx, "SELECT "+joinedColumns+" FROM products INNER JOIN groups ON products.group_id = groups.group_id "+
		productFilter("products.group_id"), productFilterArgs(filter),
		func(stmt *sqlite.Stmt) error {
			rows = append(rows, scanJoined(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("stock: filter joined products: %w", err)
	}
	return rows, nil
}

// IncreaseProductQuantity refuses amounts that would leave the quantity negative.
func (s *SQLiteStore) IncreaseProductQuantity(ctx context.Context, id int64, amount int64) (int, error) {
	n, err := s.exec(ctx, false, "UPDATE products SET quantity = quantity + ? WHERE product_id = ? AND quantity + ? >= 0",
		amount, id, amount)
	if err != nil {
		return 0, fmt.Errorf("stock: increase quantity of %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) IncreaseProductsQuantity(ctx context.Context, ids []int64, amount int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, amount)
	args = append(args, idArgs(ids)...)
	args = append(args, amount)
	n, err := s.exec(ctx, true, "UPDATE products SET quantity = quantity + ? WHERE product_id IN ("+
		placeholders(len(ids))+") AND quantity + ? >= 0", args...)
	if err != nil {
		return 0, fmt.Errorf("stock: increase quantities: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DecreaseProductQuantity(ctx context.Context, id int64, amount int64) (int, error) {
	n, err := s.exec(ctx, false, "UPDATE products SET quantity = quantity - ? WHERE product_id = ? AND quantity >= ?",
		amount, id, amount)
	if err != nil {
		return 0, fmt.Errorf("stock: decrease quantity of %d: %w", id, err)
	}
	return n, nil
}

func scanGroup(stmt *sqlite.Stmt) Group {
	return Group{
		GroupID:     stmt.ColumnInt64(0),
		Name:        stmt.ColumnText(1),
		Description: stmt.ColumnText(2),
	}
}

func scanProduct(stmt *sqlite.Stmt) Product {
	return Product{
		ProductID:   stmt.ColumnInt64(0),
		GroupID:     stmt.ColumnInt64(1),
		Name:        stmt.ColumnText(2),
		Description: stmt.ColumnText(3),
		Producer:    stmt.ColumnText(4),
		Price:       stmt.ColumnFloat(5),
		Quantity:    stmt.ColumnInt64(6),
	}
}

func scanJoined(stmt *sqlite.Stmt) JoinedProduct {
	var row JoinedProduct
	for i := range row {
		row[i] = stmt.ColumnText(i)
	}
	return row
}

func productFilter(groupColumn string) string {
	return "WHERE product_id LIKE ? AND " + groupColumn + ` LIKE ?
		AND product_name LIKE ? AND product_description LIKE ? AND producer LIKE ?
		AND price LIKE ? AND quantity LIKE ?
		ORDER BY product_id`
}

func productFilterArgs(filter Product) []any {
	price := any("%")
	if filter.Price > 0 {
		price = filter.Price
	}
	return []any{
		likeID(filter.ProductID),
		likeID(filter.GroupID),
		likeText(filter.Name),
		likeText(filter.Description),
		likeText(filter.Producer),
		price,
		likeID(filter.Quantity),
	}
}

func likeID(id int64) any {
	if id > 0 {
		return id
	}
	return "%"
}

func likeText(s string) any {
	if s != "" {
		return s
	}
	return "%"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
