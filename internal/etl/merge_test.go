package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

func s(v string) dataset.Value { return dataset.String(v) }

func ordersTable() *dataset.Table {
	return dataset.MustNew(
		[]string{"order_id", "user_id", "restaurant_id", "total_amount", "restaurant_name"},
		[][]dataset.Value{
			{s("1"), s("U1"), s("R1"), s("100"), s("Spice Route")},
			{s("2"), s("U2"), s("R2"), s("200"), s("Dragon Wok")},
			{s("3"), s("U9"), s("R1"), s("300"), s("Spice Route")},
			{s("4"), dataset.Null, s("R9"), s("400"), s("Ghost")},
		},
	)
}

func usersTable() *dataset.Table {
	return dataset.MustNew(
		[]string{"user_id", "city", "membership"},
		[][]dataset.Value{
			{s("U1"), s("Pune"), s("Gold")},
			{s("U2"), s("Delhi"), s("Regular")},
		},
	)
}

func restaurantsTable() *dataset.Table {
	return dataset.MustNew(
		[]string{"restaurant_id", "restaurant_name", "cuisine"},
		[][]dataset.Value{
			{s("R1"), s("Spice Route"), s("Indian")},
			{s("R2"), s("Dragon Wok"), s("Chinese")},
		},
	)
}

func TestMerge_Columns(t *testing.T) {
	merged, stats, err := Merge(ordersTable(), usersTable(), restaurantsTable(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"order_id", "user_id", "restaurant_id", "total_amount", "restaurant_name_x",
		"city", "membership",
		"restaurant_name_y", "cuisine",
	}, merged.Columns())
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 9, stats.Columns)
	assert.Equal(t, 2, stats.UnmatchedUsers)
	assert.Equal(t, 1, stats.UnmatchedRestaurants)
}

func TestMerge_PreservesOrderRows(t *testing.T) {
	orders := ordersTable()
	merged, _, err := Merge(orders, usersTable(), restaurantsTable(), DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, orders.Len(), merged.Len())
	for i := 0; i < orders.Len(); i++ {
		for _, c := range []string{"order_id", "user_id", "restaurant_id", "total_amount"} {
			assert.True(t, orders.Get(i, c).Equal(merged.Get(i, c)), "row %d column %s", i, c)
		}
	}
}

func TestMerge_UnmatchedKeysGiveMissingValues(t *testing.T) {
	merged, _, err := Merge(ordersTable(), usersTable(), restaurantsTable(), DefaultOptions())
	require.NoError(t, err)

	tests := []struct {
		name   string
		row    int
		column string
		want   dataset.Value
	}{
		{"matched user", 0, "city", s("Pune")},
		{"matched restaurant", 1, "cuisine", s("Chinese")},
		{"unknown user", 2, "city", dataset.Null},
		{"unknown user keeps restaurant", 2, "cuisine", s("Indian")},
		{"null user key never matches", 3, "membership", dataset.Null},
		{"unknown restaurant", 3, "restaurant_name_y", dataset.Null},
		{"left copy kept", 3, "restaurant_name_x", s("Ghost")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(merged.Get(tt.row, tt.column)),
				"got %q null=%v", merged.Get(tt.row, tt.column).String(), merged.Get(tt.row, tt.column).IsNull())
		})
	}
}

func TestMerge_DuplicateKeysUseFirstOccurrence(t *testing.T) {
	users := dataset.MustNew(
		[]string{"user_id", "city"},
		[][]dataset.Value{
			{s("U1"), s("Pune")},
			{s("U1"), s("Mumbai")},
			{s("U2"), s("Delhi")},
		},
	)

	merged, stats, err := Merge(ordersTable(), users, restaurantsTable(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 4, merged.Len())
	assert.Equal(t, "Pune", merged.Get(0, "city").String())
	assert.Equal(t, 1, stats.DuplicateUserKeys)
	assert.Zero(t, stats.DuplicateRestaurantKeys)
}

func TestMerge_RightRowsWithoutKeyNeverJoin(t *testing.T) {
	restaurants := dataset.MustNew(
		[]string{"cuisine", "restaurant_id"},
		[][]dataset.Value{
			{s("Unknown"), dataset.Null},
			{s("Indian"), s("R1")},
			{s("Thai"), s("R1")},
		},
	)

	merged, stats, err := Merge(ordersTable(), usersTable(), restaurants, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, 4, merged.Len())
	assert.Equal(t, []string{"1", "2", "3", "4"}, orderIDs(merged), "left order survives the join")
	assert.Equal(t, "Indian", merged.Get(0, "cuisine").String())
	assert.True(t, merged.Get(1, "cuisine").IsNull())
	assert.True(t, merged.Get(3, "cuisine").IsNull())
	assert.Equal(t, 2, stats.UnmatchedRestaurants)
	assert.Equal(t, 1, stats.DuplicateRestaurantKeys)
	assert.Equal(t, "restaurant_name", merged.Columns()[4], "no collision, no suffix")
}

func orderIDs(t *dataset.Table) []string {
	ids := make([]string, t.Len())
	for i := range ids {
		ids[i] = t.Get(i, "order_id").String()
	}
	return ids
}

func TestMerge_EmptyOrders(t *testing.T) {
	orders := dataset.Empty("order_id", "user_id", "restaurant_id")

	merged, stats, err := Merge(orders, usersTable(), restaurantsTable(), DefaultOptions())
	require.NoError(t, err)

	assert.Zero(t, merged.Len())
	assert.Equal(t, []string{"order_id", "user_id", "restaurant_id", "city", "membership", "restaurant_name", "cuisine"}, merged.Columns())
	assert.Zero(t, stats.UnmatchedUsers)
}

func TestMerge_MissingKeyColumn(t *testing.T) {
	tests := []struct {
		name        string
		orders      *dataset.Table
		users       *dataset.Table
		restaurants *dataset.Table
	}{
		{
			name:        "orders without user_id",
			orders:      dataset.Empty("order_id", "restaurant_id"),
			users:       usersTable(),
			restaurants: restaurantsTable(),
		},
		{
			name:        "users without user_id",
			orders:      ordersTable(),
			users:       dataset.Empty("city"),
			restaurants: restaurantsTable(),
		},
		{
			name:        "restaurants without restaurant_id",
			orders:      ordersTable(),
			users:       usersTable(),
			restaurants: dataset.Empty("cuisine"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Merge(tt.orders, tt.users, tt.restaurants, DefaultOptions())
			assert.ErrorIs(t, err, apperrors.ErrSchema)
		})
	}
}

func TestJoinedColumns_Ambiguous(t *testing.T) {
	_, err := joinedColumns([]string{"id", "a", "a_y"}, []string{"id", "a"}, "id", DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}
