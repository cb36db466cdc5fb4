package xevent

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hiddenBase struct{ ID int }

type withHidden struct {
	hiddenBase
}

func typesOf(list []assignable) []reflect.Type {
	out := make([]reflect.Type, 0, len(list))
	for _, a := range list {
		out = append(out, a.typ)
	}
	return out
}

func TestHierarchy_EmbeddedDepthFirst(t *testing.T) {
	h := newTypeHierarchy(true)

	list := h.assignableTypes(reflect.TypeFor[Deep]())
	assert.Equal(t, []reflect.Type{
		reflect.TypeFor[Deep](),
		reflect.TypeFor[Derived](),
		reflect.TypeFor[Base](),
		anyType,
	}, typesOf(list))

	e := Deep{Derived: Derived{Base: Base{ID: 5}, Extra: "x"}, Level: 2}
	v, ok := list[2].value(e)
	require.True(t, ok)
	assert.Equal(t, Base{ID: 5}, v)

	v, ok = list[0].value(e)
	require.True(t, ok)
	assert.Equal(t, e, v)
}

func TestHierarchy_PointerEvents(t *testing.T) {
	h := newTypeHierarchy(true)

	list := h.assignableTypes(reflect.TypeFor[*Derived]())
	assert.Equal(t, []reflect.Type{reflect.TypeFor[*Derived](), reflect.TypeFor[*Base](), anyType}, typesOf(list))

	e := &Derived{Base: Base{ID: 1}}
	v, ok := list[1].value(e)
	require.True(t, ok)
	assert.Same(t, &e.Base, v)

	list = h.assignableTypes(reflect.TypeFor[WithPtr]())
	require.Equal(t, []reflect.Type{reflect.TypeFor[WithPtr](), reflect.TypeFor[*Base](), anyType}, typesOf(list))
	_, ok = list[1].value(WithPtr{})
	assert.False(t, ok)
}

func TestHierarchy_UnexportedEmbeddedIgnored(t *testing.T) {
	h := newTypeHierarchy(true)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[withHidden](), anyType},
		typesOf(h.assignableTypes(reflect.TypeFor[withHidden]())))
}

func TestHierarchy_BoundInterfacesInvalidateCache(t *testing.T) {
	h := newTypeHierarchy(true)
	person := reflect.TypeFor[Person]()
	named := reflect.TypeFor[Named]()

	assert.Equal(t, []reflect.Type{person, anyType}, typesOf(h.assignableTypes(person)))

	h.bindInterface(named)
	assert.Equal(t, []reflect.Type{person, named, anyType}, typesOf(h.assignableTypes(person)))
	assert.Equal(t, []reflect.Type{reflect.TypeFor[*Person](), named, anyType},
		typesOf(h.assignableTypes(reflect.TypeFor[*Person]())))

	h.bindInterface(anyType)
	h.bindInterface(reflect.TypeFor[Base]())
	assert.Len(t, h.interfaces, 1)
}

func TestHierarchy_Disabled(t *testing.T) {
	h := newTypeHierarchy(false)
	h.bindInterface(reflect.TypeFor[Named]())

	assert.Equal(t, []reflect.Type{reflect.TypeFor[Deep]()}, typesOf(h.assignableTypes(reflect.TypeFor[Deep]())))
	assert.Empty(t, h.interfaces)
}
