package typeinfo

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrospect_Scalar(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(""))
	require.NoError(t, err)
	assert.False(t, d.Nullable)
	assert.False(t, d.IsSequence)
	assert.False(t, d.IsStructured)
}

func TestIntrospect_PointerIsNullable(t *testing.T) {
	var p *int
	d, err := Introspect(reflect.TypeOf(p))
	require.NoError(t, err)
	assert.True(t, d.Nullable)
	assert.Equal(t, reflect.TypeOf(0), d.Go)
}

func TestIntrospect_Sequence(t *testing.T) {
	d, err := Introspect(reflect.TypeOf([]string(nil)))
	require.NoError(t, err)
	assert.True(t, d.IsSequence)
	assert.Equal(t, reflect.TypeOf(""), d.ItemType)
}

func TestIntrospect_ByteSliceIsNotSequence(t *testing.T) {
	d, err := Introspect(reflect.TypeOf([]byte(nil)))
	require.NoError(t, err)
	assert.False(t, d.IsSequence)
}

func TestIntrospect_TimeIsScalarNotStructured(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(time.Time{}))
	require.NoError(t, err)
	assert.False(t, d.IsStructured)
}

type taggedUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestIntrospect_TaggedStruct(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(taggedUser{}))
	require.NoError(t, err)
	assert.True(t, d.IsStructured)
	assert.Equal(t, TaggedStruct, d.StructuredKind)
}

type plainPair struct {
	X int
	Y int
}

func TestIntrospect_PlainRecordWhenNoTags(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(plainPair{}))
	require.NoError(t, err)
	assert.True(t, d.IsStructured)
	assert.Equal(t, PlainRecord, d.StructuredKind)
}

func TestIntrospect_UntypedMapping(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, UntypedMapping, d.StructuredKind)
}

func TestIntrospect_PlainRecordMap(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(map[string]int{}))
	require.NoError(t, err)
	assert.Equal(t, PlainRecord, d.StructuredKind)
}

func TestIntrospect_TwoVariantUnion(t *testing.T) {
	d, err := Introspect(reflect.TypeOf(Union2[string, int]{}))
	require.NoError(t, err)
	assert.True(t, d.IsUnion)
	require.Len(t, d.Variants, 2)
	assert.Equal(t, reflect.TypeOf(""), d.Variants[0])
	assert.Equal(t, reflect.TypeOf(0), d.Variants[1])
}

type withAliasAndValidate struct {
	Q int `query:"q" alias:"query_param" validate:"min=1,max=10"`
}

func TestIntrospectField_ParsesOrderedMetadata(t *testing.T) {
	f, _ := reflect.TypeOf(withAliasAndValidate{}).FieldByName("Q")
	d, err := IntrospectField(f)
	require.NoError(t, err)

	alias, ok := d.Override("alias")
	require.True(t, ok)
	assert.Equal(t, "query_param", alias)

	validate, ok := d.Override("validate")
	require.True(t, ok)
	assert.Equal(t, "min=1,max=10", validate)
}

func TestMeta_OverrideTakesLastOccurrence(t *testing.T) {
	d := &Descriptor{Metadata: []Meta{{Kind: "alias", Value: "old"}, {Kind: "alias", Value: "new"}}}
	v, ok := d.Override("alias")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestOverride_MissingKind(t *testing.T) {
	d := &Descriptor{}
	_, ok := d.Override("alias")
	assert.False(t, ok)
}
