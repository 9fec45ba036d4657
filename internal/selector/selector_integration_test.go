package selector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horoscope/internal/selector"
	"horoscope/internal/testutil"
)

func TestPickAgainstPostgres(t *testing.T) {
	database, cleanup := testutil.TestDB(t)
	defer cleanup()
	ctx := context.Background()

	sel := selector.New(database)

	_, err := sel.Pick(ctx, 0)
	require.ErrorIs(t, err, selector.ErrNotFound, "empty table")

	a := testutil.CreateTestHoroscope(t, database, 1, "A")
	b := testutil.CreateTestHoroscope(t, database, 3, "B")
	c := testutil.CreateTestHoroscope(t, database, 5, "C")

	seen := map[int64]int{}
	for range 300 {
		h, err := sel.Pick(ctx, b.ID)
		require.NoError(t, err)
		seen[h.ID]++
	}
	assert.Zero(t, seen[b.ID], "excluded id is never drawn")
	assert.Positive(t, seen[a.ID])
	assert.Positive(t, seen[c.ID])

	require.NoError(t, database.DeleteHoroscope(ctx, a.ID))
	require.NoError(t, database.DeleteHoroscope(ctx, c.ID))
	_, err = sel.Pick(ctx, b.ID)
	assert.ErrorIs(t, err, selector.ErrNotFound, "only the excluded row remains")
}
