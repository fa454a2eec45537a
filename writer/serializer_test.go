package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/formatctx"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
)

func TestSerializer_ScalarRoundTrip(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	_, _, err := s.Marshal(MarshalInput{
		Name:  "temperature",
		Type:  format.TypeDouble,
		Shape: format.ShapeGlobalValue,
		Data:  []byte{0, 0, 0, 0, 0, 0, 0x59, 0x40}, // 100.0 as float64 LE
	})
	require.NoError(t, err)

	info, err := s.CloseTimestep(0, true)
	require.NoError(t, err)

	assert.Len(t, info.NewMetaMeta, 1, "first step must register a new layout")
	assert.NotEmpty(t, info.MetadataBlob)

	handle, err := fc.IdentifyIncoming(info.MetadataBlob)
	require.NoError(t, err)

	layout := s.buildLayout()
	require.NoError(t, fc.EstablishConversion(handle, layout))

	rec, err := fc.DecodeInPlace(handle, info.MetadataBlob)
	require.NoError(t, err)

	fieldName, err := section.EncodeFieldName("temperature", format.ShapeGlobalValue, false, false)
	require.NoError(t, err)

	slotBytes, ok := rec.Field(fieldName)
	require.True(t, ok)
	slot := engine.Uint64(slotBytes)
	require.NotZero(t, slot)

	raw, _, err := section.DecodeScalar(info.MetadataBlob[slot:])
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x59, 0x40}, raw)
}

func TestSerializer_SecondStepReusesLayout(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)

	s.InitStep(nil)
	_, _, err := s.Marshal(MarshalInput{Name: "v", Type: format.TypeInt32, Shape: format.ShapeGlobalValue, Data: []byte{1, 0, 0, 0}})
	require.NoError(t, err)
	info1, err := s.CloseTimestep(0, true)
	require.NoError(t, err)
	assert.Len(t, info1.NewMetaMeta, 1)

	s.InitStep(nil)
	_, _, err = s.Marshal(MarshalInput{Name: "v", Type: format.TypeInt32, Shape: format.ShapeGlobalValue, Data: []byte{2, 0, 0, 0}})
	require.NoError(t, err)
	info2, err := s.CloseTimestep(1, true)
	require.NoError(t, err)
	assert.Empty(t, info2.NewMetaMeta, "unchanged layout must not re-register")
}

func TestSerializer_ArrayBlocksAndStats(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	data := make([]byte, 4*4) // 4 int32 elements
	engine.PutUint32(data[0:], 10)
	engine.PutUint32(data[4:], 20)
	engine.PutUint32(data[8:], 5)
	engine.PutUint32(data[12:], 30)

	idx, span, err := s.Marshal(MarshalInput{
		Name:  "grid",
		Type:  format.TypeInt32,
		Shape: format.ShapeLocalArray,
		Dims:  1,
		Count: []uint64{4},
		Data:  data,
		Sync:  true,
		Stats: true,
	})
	require.NoError(t, err)
	assert.Nil(t, span)
	assert.Equal(t, 0, idx)

	rec := s.vars[s.byName["grid"]]
	require.Equal(t, 1, rec.meta.BlockCount)
	require.True(t, rec.meta.HasStats())
	lo, hi := rec.meta.MinMax[0].AsFloat64()
	assert.Equal(t, 5.0, lo)
	assert.Equal(t, 30.0, hi)

	_, err = s.CloseTimestep(0, true)
	require.NoError(t, err)
}

func TestSerializer_SpanOutReturnsWritableRegion(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	_, span, err := s.Marshal(MarshalInput{
		Name:    "spanned",
		Type:    format.TypeUint8,
		Shape:   format.ShapeLocalArray,
		Dims:    1,
		Count:   []uint64{3},
		SpanOut: true,
	})
	require.NoError(t, err)
	require.NotNil(t, span)

	ptr := s.buf.GetPtr(*span)
	copy(ptr, []byte{7, 8, 9})

	_, err = s.CloseTimestep(0, true)
	require.NoError(t, err)
}

func TestSerializer_OperatorCompressesBlock(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	data := make([]byte, 64)
	_, _, err := s.Marshal(MarshalInput{
		Name:     "compressed",
		Type:     format.TypeUint8,
		Shape:    format.ShapeLocalArray,
		Dims:     1,
		Count:    []uint64{64},
		Data:     data,
		Operator: operator.TypeS2,
	})
	require.NoError(t, err)

	rec := s.vars[s.byName["compressed"]]
	require.True(t, rec.meta.HasOperator())
	assert.NotZero(t, rec.meta.DataBlockSize[0])

	_, err = s.CloseTimestep(0, true)
	require.NoError(t, err)
}

func TestSerializer_DeferredBlockFlushedAtClose(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	data := make([]byte, smallBlockThreshold+1) // exceeds the small-block fast path, so this Put defers
	count := uint64(len(data))

	_, _, err := s.Marshal(MarshalInput{
		Name:  "deferred",
		Type:  format.TypeUint8,
		Shape: format.ShapeLocalArray,
		Dims:  1,
		Count: []uint64{count},
		Data:  data,
		Sync:  false,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.buf.PendingDeferred(), "large async put should stay deferred until flush")

	info, err := s.CloseTimestep(0, true)
	require.NoError(t, err)
	assert.Equal(t, 0, info.DataBuffer.PendingDeferred())
}

func TestSerializer_MarshalBeforeInitStep(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)

	_, _, err := s.Marshal(MarshalInput{Name: "x", Type: format.TypeInt32, Shape: format.ShapeGlobalValue, Data: []byte{0, 0, 0, 0}})
	assert.Error(t, err)
}

func TestSerializer_AttributesRoundTrip(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	require.NoError(t, s.MarshalAttribute("units", format.TypeChar, -1, []byte("kelvin")))

	info, err := s.CloseTimestep(0, true)
	require.NoError(t, err)
	require.NotEmpty(t, info.AttributesBlob)

	attrs, order, err := DecodeAttributes(info.AttributesBlob)
	require.NoError(t, err)
	assert.Equal(t, []string{"units"}, order)
	assert.Equal(t, []byte("kelvin"), attrs["units"].Data)
	assert.Equal(t, -1, attrs["units"].ElemCount)
}

func TestSerializer_StepStateResetsAfterClose(t *testing.T) {
	fc := formatctx.New()
	s := New(fc)
	s.InitStep(nil)

	_, _, err := s.Marshal(MarshalInput{Name: "v", Type: format.TypeInt32, Shape: format.ShapeGlobalValue, Data: []byte{1, 0, 0, 0}})
	require.NoError(t, err)
	_, err = s.CloseTimestep(0, true)
	require.NoError(t, err)

	assert.False(t, s.bitfield.Test(0), "bitfield must clear between steps")

	_, _, err = s.Marshal(MarshalInput{Name: "other", Type: format.TypeInt32, Shape: format.ShapeGlobalValue, Data: []byte{2, 0, 0, 0}})
	assert.ErrorIs(t, err, errs.ErrMarshalBeforeInit, "Marshal after CloseTimestep without a new InitStep must fail")
}
