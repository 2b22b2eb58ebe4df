package dedup

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pairwatch/internal/trade"
	"pairwatch/internal/watch"
)

func mk(id string, ts int64, usd float64) trade.Trade {
	return trade.Trade{
		ID:        id,
		Side:      trade.SideBuy,
		AmountUSD: decimal.NewNullDecimal(decimal.NewFromFloat(usd)),
		Timestamp: &ts,
	}
}

func ids(trades []trade.Trade) []string {
	out := make([]string, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.ID)
	}
	return out
}

func TestEngine_SequenceScenario(t *testing.T) {
	batch := []trade.Trade{mk("1", 100, 5), mk("2", 200, 50)}
	engine := New(BySequence)

	res := engine.Apply(watch.At(1), batch, decimal.NewFromInt(10))
	require.Equal(t, []string{"2"}, ids(res.New))
	require.Equal(t, watch.At(2), res.Cursor)
	require.False(t, res.Seeded)
}

func TestEngine_FirstRunSeedsSilently(t *testing.T) {
	batch := []trade.Trade{mk("1", 100, 5), mk("2", 200, 50)}

	res := New(BySequence).Apply(watch.Cursor{}, batch, decimal.NewFromInt(10))
	require.Empty(t, res.New)
	require.Equal(t, watch.At(2), res.Cursor)
	require.True(t, res.Seeded)

	res = New(ByTimestamp).Apply(watch.Cursor{}, batch, decimal.Zero)
	require.Empty(t, res.New)
	require.Equal(t, watch.At(200), res.Cursor)
}

func TestEngine_FirstRunEmptyBatchStaysUnset(t *testing.T) {
	res := New(nil).Apply(watch.Cursor{}, nil, decimal.Zero)
	require.Empty(t, res.New)
	require.False(t, res.Cursor.Set)
	require.False(t, res.Seeded)
}

func TestEngine_Idempotent(t *testing.T) {
	engine := New(ByTimestamp)
	batch := []trade.Trade{mk("a", 100, 20), mk("b", 150, 20), mk("c", 200, 20)}

	first := engine.Apply(watch.At(120), batch, decimal.Zero)
	require.Equal(t, []string{"b", "c"}, ids(first.New))

	second := engine.Apply(first.Cursor, batch, decimal.Zero)
	require.Empty(t, second.New)
	require.Equal(t, first.Cursor, second.Cursor)
}

func TestEngine_FilterStillAdvancesCursor(t *testing.T) {
	batch := []trade.Trade{mk("a", 100, 50), mk("b", 200, 1)}

	res := New(ByTimestamp).Apply(watch.At(10), batch, decimal.NewFromInt(10))
	require.Equal(t, []string{"a"}, ids(res.New))
	require.Equal(t, 1, res.Filtered)
	require.Equal(t, watch.At(200), res.Cursor)
}

func TestEngine_ThresholdIsInclusive(t *testing.T) {
	res := New(ByTimestamp).Apply(watch.At(0), []trade.Trade{mk("edge", 5, 10)}, decimal.NewFromInt(10))
	require.Equal(t, []string{"edge"}, ids(res.New))
}

func TestEngine_UnknownSizeAlwaysPasses(t *testing.T) {
	ts := int64(300)
	unknown := trade.Trade{ID: "u", Timestamp: &ts}

	res := New(ByTimestamp).Apply(watch.At(1), []trade.Trade{unknown}, decimal.NewFromInt(1_000_000))
	require.Equal(t, []string{"u"}, ids(res.New))
}

func TestEngine_EqualKeysTreatedAsSeen(t *testing.T) {
	batch := []trade.Trade{mk("x", 100, 20), mk("y", 100, 20), mk("z", 101, 20)}

	res := New(ByTimestamp).Apply(watch.At(100), batch, decimal.Zero)
	require.Equal(t, []string{"z"}, ids(res.New))

	res = New(ByTimestamp).Apply(watch.At(99), batch, decimal.Zero)
	require.Equal(t, []string{"x", "y", "z"}, ids(res.New))
}

func TestEngine_OutOfRangeTimestampCannotStallCursor(t *testing.T) {
	engine := New(ByTimestamp)
	cursor := watch.At(1_700_000_000)

	batch := trade.Normalize([]trade.Record{
		{trade.FieldID: "bogus", trade.FieldTimestamp: json.Number("1e20"), trade.FieldAmountUSD: 50},
		{trade.FieldID: "ns", trade.FieldTimestamp: json.Number("1700000060000000000"), trade.FieldAmountUSD: 50},
	})
	res := engine.Apply(cursor, batch, decimal.Zero)
	require.Equal(t, []string{"ns"}, ids(res.New))
	require.Equal(t, watch.At(1_700_000_060), res.Cursor)

	next := trade.Normalize([]trade.Record{
		{trade.FieldID: "later", trade.FieldTimestamp: json.Number("1700000120"), trade.FieldAmountUSD: 50},
	})
	res = engine.Apply(res.Cursor, next, decimal.Zero)
	require.Equal(t, []string{"later"}, ids(res.New))
}

func TestEngine_NoNewTradesKeepsCursor(t *testing.T) {
	res := New(ByTimestamp).Apply(watch.At(500), []trade.Trade{mk("old", 100, 99)}, decimal.Zero)
	require.Empty(t, res.New)
	require.Equal(t, watch.At(500), res.Cursor)
}

func TestEngine_OutputSortedAndAboveCursor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := New(ByTimestamp)

	for round := 0; round < 50; round++ {
		batch := make([]trade.Trade, 0, 20)
		for i := 0; i < 20; i++ {
			batch = append(batch, mk("t", rng.Int63n(1000), float64(rng.Intn(100))))
		}
		cursor := watch.At(rng.Int63n(1000))

		res := engine.Apply(cursor, batch, decimal.NewFromInt(25))
		for i, tr := range res.New {
			require.Greater(t, tr.Unix(), cursor.Key)
			if i > 0 {
				require.LessOrEqual(t, res.New[i-1].Unix(), tr.Unix())
			}
		}
		require.GreaterOrEqual(t, res.Cursor.Key, cursor.Key)
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	batch := []trade.Trade{mk("b", 200, 1), mk("a", 100, 1)}
	New(ByTimestamp).Apply(watch.At(0), batch, decimal.Zero)
	require.Equal(t, []string{"b", "a"}, ids(batch))
}

func TestKeyFuncFor(t *testing.T) {
	_, err := KeyFuncFor("timestamp")
	require.NoError(t, err)
	_, err = KeyFuncFor("sequence")
	require.NoError(t, err)
	_, err = KeyFuncFor("block")
	require.Error(t, err)

	require.Equal(t, int64(0), BySequence(trade.Trade{ID: "0xabc"}))
}
