package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("5m")
	require.NoError(t, err)
	assert.Equal(t, "5", iv.BybitCode)
	assert.Equal(t, "5m", iv.BinanceCode)
	assert.Equal(t, int64(300_000), iv.Millis())

	iv, err = ParseInterval(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "60", iv.BybitCode)

	_, err = ParseInterval("2m")
	assert.Error(t, err)
}

func TestAlignRange(t *testing.T) {
	iv, _ := ParseInterval("5m")
	step := iv.Millis()

	start, end := iv.AlignRange(step+1, 3*step+2)
	assert.Equal(t, step, start)
	assert.Equal(t, 3*step, end)

	// 反序输入自动交换
	start, end = iv.AlignRange(3*step, step)
	assert.Equal(t, step, start)
	assert.Equal(t, 3*step, end)
}

func TestExpectedBars(t *testing.T) {
	iv, _ := ParseInterval("1h")
	step := iv.Millis()
	assert.Equal(t, int64(24), iv.ExpectedBars(0, 24*step))
	assert.Equal(t, int64(1), iv.ExpectedBars(0, 1))
	assert.Zero(t, iv.ExpectedBars(10, 10))
}

func TestCandleValid(t *testing.T) {
	ok := Candle{Open: 100, High: 101, Low: 99, Close: 100.5}
	assert.True(t, ok.Valid())

	badHigh := Candle{Open: 100, High: 99.9, Low: 99, Close: 100.5}
	assert.False(t, badHigh.Valid())

	badLow := Candle{Open: 100, High: 101, Low: 100.2, Close: 100.5}
	assert.False(t, badLow.Valid())

	inverted := Candle{Open: 100, High: 99, Low: 101, Close: 100}
	assert.False(t, inverted.Valid())
}

func TestSchemaForArity(t *testing.T) {
	s, err := SchemaForArity(6)
	require.NoError(t, err)
	assert.Equal(t, SchemaOHLCV, s)

	s, err = SchemaForArity(12)
	require.NoError(t, err)
	assert.Equal(t, SchemaExtended, s)

	_, err = SchemaForArity(7)
	assert.Error(t, err)
}

func TestDecodeRowsOHLCV(t *testing.T) {
	rows := [][]string{{"1700000000000", "100", "101.5", "99", "100.5", "12.25"}}
	cs, err := DecodeRows(SchemaOHLCV, rows)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, int64(1700000000000), cs[0].OpenTime)
	assert.InDelta(t, 101.5, cs[0].High, 1e-9)
	assert.Zero(t, cs[0].CloseTime)
}

func TestDecodeRowsExtended(t *testing.T) {
	rows := [][]string{{
		"1700000000000", "100", "101", "99", "100.5", "12",
		"1700000059999", "1200.5", "42", "6", "600.25", "0",
	}}
	cs, err := DecodeRows(SchemaExtended, rows)
	require.NoError(t, err)
	c := cs[0]
	assert.Equal(t, int64(1700000059999), c.CloseTime)
	assert.InDelta(t, 1200.5, c.QuoteVolume, 1e-9)
	assert.Equal(t, int64(42), c.Trades)
	assert.InDelta(t, 6, c.TakerBuyBase, 1e-9)
}

func TestDecodeRowsErrors(t *testing.T) {
	_, err := DecodeRows(Schema("bogus"), nil)
	assert.Error(t, err)

	_, err = DecodeRows(SchemaOHLCV, [][]string{{"1", "2", "3"}})
	assert.Error(t, err)

	_, err = DecodeRows(SchemaOHLCV, [][]string{{"x", "2", "3", "4", "5", "6"}})
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Candles{{
		OpenTime: 1700000000000, Open: 45000.5, High: 45100, Low: 44900.25, Close: 45050,
		Volume: 3.75, CloseTime: 1700000299999, QuoteVolume: 168937.5, Trades: 120,
		TakerBuyBase: 1.5, TakerBuyQuote: 67575,
	}}
	rows := EncodeRows(SchemaExtended, in)
	require.Len(t, rows[0], 12)
	assert.Equal(t, "45000.5", rows[0][1])

	back, err := DecodeRows(SchemaExtended, rows)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestCandlesSortedAndCloses(t *testing.T) {
	cs := Candles{{OpenTime: 1, Close: 10}, {OpenTime: 2, Close: 11}}
	assert.True(t, cs.Sorted())
	assert.Equal(t, []float64{10, 11}, cs.Closes())

	unsorted := Candles{{OpenTime: 2}, {OpenTime: 1}}
	assert.False(t, unsorted.Sorted())
}
