// Package testutil provides fixtures and log capture for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Source fixtures. Six orders from four users at four restaurants: U999 and
// R404 have no master record, order 4 has no rating and order 6 no amount.
const (
	OrdersCSV = `order_id,user_id,restaurant_id,order_date,total_amount,rating,restaurant_name
1,U001,R001,01-01-2024,450.50,4.5,Spice Route
2,U002,R002,01-01-2024,220.00,3.8,Dragon Wok
3,U001,R003,02-01-2024,780.25,4.9,Pasta Piazza
4,U003,R001,03-01-2024,310.00,,Spice Route
5,U999,R002,05-01-2024,150.75,3.2,Dragon Wok
6,U002,R404,05-01-2024,,4.0,Ghost Kitchen
`

	UsersJSON = `[
  {"user_id": "U001", "name": "Asha", "city": "Pune", "membership": "Gold"},
  {"user_id": "U002", "name": "Ravi", "city": "Delhi", "membership": "Regular"},
  {"user_id": "U003", "name": "Meera", "city": "Pune", "membership": "Gold"}
]
`

	RestaurantsSQL = `CREATE TABLE restaurants (
    restaurant_id TEXT PRIMARY KEY,
    restaurant_name TEXT NOT NULL,
    cuisine TEXT,
    avg_cost REAL
);

INSERT INTO restaurants (restaurant_id, restaurant_name, cuisine, avg_cost) VALUES
    ('R001', 'Spice Route', 'Indian', 350.0),
    ('R002', 'Dragon Wok', 'Chinese', 280.5),
    ('R003', 'Pasta Piazza', 'Italian', NULL);
`
)

// WriteSourceFixtures writes orders.csv, users.json and restaurants.sql into
// base/data and returns base
func WriteSourceFixtures(t testing.TB, base string) string {
	t.Helper()
	dataDir := filepath.Join(base, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	files := map[string]string{
		"orders.csv":      OrdersCSV,
		"users.json":      UsersJSON,
		"restaurants.sql": RestaurantsSQL,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644))
	}
	return base
}
