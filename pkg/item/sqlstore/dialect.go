package sqlstore

import (
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect holds the statements for one SQL driver.
type dialect struct {
	driver string
	schema string
	insert string
	update string
	delete string
	get    string
	list   string
	nextID string
}

var sqliteDialect = dialect{
	driver: DriverSQLite,
	schema: `CREATE TABLE IF NOT EXISTS items (
		id       INTEGER PRIMARY KEY,
		name     TEXT    NOT NULL,
		price    REAL    NOT NULL,
		quantity INTEGER NOT NULL
	)`,
	insert: "INSERT INTO items (id,name,price,quantity) VALUES (?,?,?,?) ON CONFLICT(id) DO NOTHING",
	update: "UPDATE items SET name=?, price=?, quantity=? WHERE id=?",
	delete: "DELETE FROM items WHERE id=?",
	get:    "SELECT id,name,price,quantity FROM items WHERE id=?",
	list:   "SELECT id,name,price,quantity FROM items ORDER BY name ASC, id ASC",
	nextID: "SELECT COALESCE(MAX(id), 0) + 1 FROM items",
}

var postgresDialect = dialect{
	driver: DriverPostgres,
	schema: `CREATE TABLE IF NOT EXISTS items (
		id       BIGINT PRIMARY KEY,
		name     TEXT NOT NULL,
		price    DOUBLE PRECISION NOT NULL,
		quantity BIGINT NOT NULL
	)`,
	insert: "INSERT INTO items (id,name,price,quantity) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING",
	update: "UPDATE items SET name=$1, price=$2, quantity=$3 WHERE id=$4",
	delete: "DELETE FROM items WHERE id=$1",
	get:    "SELECT id,name,price,quantity FROM items WHERE id=$1",
	// The "C" collation keeps byte ordering regardless of the database locale.
	list:   `SELECT id,name,price,quantity FROM items ORDER BY name COLLATE "C" ASC, id ASC`,
	nextID: "SELECT COALESCE(MAX(id), 0) + 1 FROM items",
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}
