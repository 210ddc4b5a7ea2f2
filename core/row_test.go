package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryRow_EncodeDecode(t *testing.T) {
	row := Row{int32(7), int64(-42), 3.5, "2024-01-01", true, nil}
	bin := EncodeRow(row)

	assert.Equal(t, 6, bin.Arity())
	decoded, err := bin.Decode()
	require.NoError(t, err)
	assert.Equal(t, row, decoded)
	assert.Equal(t, "(7, -42, 3.5, 2024-01-01, true, <nil>)", bin.String())
}

func TestBinaryRow_EmptyRow(t *testing.T) {
	assert.Equal(t, 0, EmptyRow.Arity())
	assert.Equal(t, EmptyRow, EncodeRow(Row{}))
	decoded, err := EmptyRow.Decode()
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestBinaryRow_Comparable(t *testing.T) {
	a := EncodeRow(Row{"x", int32(1)})
	b := EncodeRow(Row{"x", int32(1)})
	c := EncodeRow(Row{"x", int32(2)})
	assert.True(t, a == b)
	assert.False(t, a == c)
	assert.Equal(t, a.Hash(), b.Hash())

	set := map[BinaryRow]struct{}{a: {}}
	_, ok := set[b]
	assert.True(t, ok)
}

func TestBinaryRow_Malformed(t *testing.T) {
	_, err := BinaryRow("").Decode()
	require.ErrorIs(t, err, ErrMalformedRow)

	bad := BinaryRow([]byte{2, tagString, 10, 'a'})
	_, err = bad.Decode()
	require.ErrorIs(t, err, ErrMalformedRow)
}

func TestEncodeRow_PanicsOnUnsupportedType(t *testing.T) {
	assert.Panics(t, func() { EncodeRow(Row{[]byte("x")}) })
}

func TestRowType(t *testing.T) {
	rt := RowType{
		{ID: 0, Name: "dt", Type: TypeString},
		{ID: 1, Name: "hr", Type: TypeInt},
		{ID: 2, Name: "v", Type: TypeDouble},
	}
	assert.Equal(t, []string{"dt", "hr", "v"}, rt.FieldNames())
	assert.Equal(t, 1, rt.IndexOf("hr"))
	assert.Equal(t, -1, rt.IndexOf("missing"))

	proj, err := rt.Project([]string{"v", "dt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v", "dt"}, proj.FieldNames())

	_, err = rt.Project([]string{"nope"})
	require.Error(t, err)

	data, err := json.Marshal(rt[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"hr","type":"INT"}`, string(data))

	var f DataField
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, rt[1], f)
}

func TestCompare(t *testing.T) {
	testCases := []struct {
		name string
		a, b any
		want int
	}{
		{"int32 less", int32(1), int32(2), -1},
		{"mixed ints equal", int32(5), int64(5), 0},
		{"int64 greater", int64(9), int64(3), 1},
		{"double", 1.5, 1.25, 1},
		{"string", "a", "b", -1},
		{"bool", false, true, -1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Compare("a", int32(1))
	require.Error(t, err)
	assert.False(t, Equal(nil, nil))
	assert.True(t, Equal(int64(3), int32(3)))
}

func TestCoerce(t *testing.T) {
	testCases := []struct {
		name string
		v    any
		typ  DataType
		want any
		ok   bool
	}{
		{"int32 to bigint", int32(7), TypeBigInt, int64(7), true},
		{"go int to bigint", 7, TypeBigInt, int64(7), true},
		{"int64 to int", int64(7), TypeInt, int32(7), true},
		{"int64 overflows int", int64(math.MaxInt32) + 1, TypeInt, nil, false},
		{"double", 1.5, TypeDouble, 1.5, true},
		{"string", "a", TypeString, "a", true},
		{"bool", true, TypeBoolean, true, true},
		{"string to bigint", "7", TypeBigInt, nil, false},
		{"int to double", int32(1), TypeDouble, nil, false},
		{"nil", nil, TypeInt, nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Coerce(tc.v, tc.typ)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	// Coerced literals encode like stored values.
	v, _ := Coerce(int32(7), TypeBigInt)
	assert.Equal(t, EncodeRow(Row{int64(7)}), EncodeRow(Row{v}))
}

func TestPartitionInfo(t *testing.T) {
	assert.Equal(t, "table", PartitionInfo(nil, EmptyRow))
	p := EncodeRow(Row{"2024-01-01", int32(3)})
	assert.Equal(t, "partition dt=2024-01-01/hr=3", PartitionInfo([]string{"dt", "hr"}, p))
}

func TestErrors(t *testing.T) {
	err := NewDuplicateAddError("data-1.orc")
	assert.True(t, IsCorruptionError(err))
	assert.Contains(t, err.Error(), "Trying to add file data-1.orc which is already added")

	mismatch := &BucketMismatchError{PartitionInfo: "table", TotalBuckets: 2, ExpectedBuckets: 4}
	assert.True(t, IsBucketMismatchError(mismatch))
	assert.Contains(t, mismatch.Error(), "new bucket num 4, but the previous bucket num is 2")

	_, perr := ParseCompressionType("brotli")
	assert.True(t, IsValidationError(perr))
}
