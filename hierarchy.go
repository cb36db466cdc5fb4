package xevent

import (
	"reflect"
	"sync"
)

// projector extracts the value delivered for an ancestor type from the posted event.
// It reports false when the path crosses a nil embedded pointer.
type projector func(v reflect.Value) (reflect.Value, bool)

// assignable is one entry of an event type's matching list.
type assignable struct {
	typ     reflect.Type
	project projector
}

// value returns the argument delivered to handlers bound to a.typ.
func (a assignable) value(event any) (any, bool) {
	if a.project == nil {
		return event, true
	}
	v, ok := a.project(reflect.ValueOf(event))
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

// typeHierarchy memoizes the ordered list of types an event is delivered under:
// the exact type, exported embedded structs depth-first in declaration order,
// bound interface types the event implements, then any.
type typeHierarchy struct {
	inheritance bool

	mu         sync.RWMutex
	cache      map[reflect.Type][]assignable
	interfaces []reflect.Type
	known      map[reflect.Type]struct{}
}

func newTypeHierarchy(inheritance bool) *typeHierarchy {
	return &typeHierarchy{
		inheritance: inheritance,
		cache:       make(map[reflect.Type][]assignable),
		known:       make(map[reflect.Type]struct{}),
	}
}

// bindInterface records an interface event type so later lookups consider it.
// Bumping the set drops every memoized list.
func (h *typeHierarchy) bindInterface(t reflect.Type) {
	if !h.inheritance || t.Kind() != reflect.Interface || t == anyType {
		return
	}
	h.mu.RLock()
	_, ok := h.known[t]
	h.mu.RUnlock()
	if ok {
		return
	}

	h.mu.Lock()
	if _, ok := h.known[t]; !ok {
		h.known[t] = struct{}{}
		h.interfaces = append(h.interfaces, t)
		h.cache = make(map[reflect.Type][]assignable)
	}
	h.mu.Unlock()
}

func (h *typeHierarchy) assignableTypes(t reflect.Type) []assignable {
	if !h.inheritance {
		return []assignable{{typ: t}}
	}

	h.mu.RLock()
	list, ok := h.cache[t]
	h.mu.RUnlock()
	if ok {
		return list
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if list, ok := h.cache[t]; ok {
		return list
	}

	list = []assignable{{typ: t}}
	seen := map[reflect.Type]bool{t: true}
	collectEmbedded(t, nil, seen, &list)

	for _, it := range h.interfaces {
		if seen[it] {
			continue
		}
		for _, a := range list {
			if a.typ.Kind() != reflect.Interface && a.typ.Implements(it) {
				list = append(list, assignable{typ: it, project: a.project})
				seen[it] = true
				break
			}
		}
	}
	if !seen[anyType] {
		list = append(list, assignable{typ: anyType})
	}

	h.cache[t] = list
	return list
}

func (h *typeHierarchy) clear() {
	h.mu.Lock()
	h.cache = make(map[reflect.Type][]assignable)
	h.mu.Unlock()
}

func collectEmbedded(t reflect.Type, base projector, seen map[reflect.Type]bool, out *[]assignable) {
	ptr := t.Kind() == reflect.Pointer
	st := t
	if ptr {
		st = t.Elem()
	}
	if st.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}

		var (
			at   reflect.Type
			step projector
			idx  = i
		)
		switch {
		case f.Type.Kind() == reflect.Struct && ptr:
			at = reflect.PointerTo(f.Type)
			step = func(v reflect.Value) (reflect.Value, bool) {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				return v.Elem().Field(idx).Addr(), true
			}
		case f.Type.Kind() == reflect.Struct:
			at = f.Type
			step = func(v reflect.Value) (reflect.Value, bool) {
				return v.Field(idx), true
			}
		case f.Type.Kind() == reflect.Pointer && f.Type.Elem().Kind() == reflect.Struct:
			at = f.Type
			step = func(v reflect.Value) (reflect.Value, bool) {
				if ptr {
					if v.IsNil() {
						return reflect.Value{}, false
					}
					v = v.Elem()
				}
				fv := v.Field(idx)
				if fv.IsNil() {
					return reflect.Value{}, false
				}
				return fv, true
			}
		default:
			continue
		}

		proj := compose(base, step)
		if !seen[at] {
			seen[at] = true
			*out = append(*out, assignable{typ: at, project: proj})
		}
		collectEmbedded(at, proj, seen, out)
	}
}

func compose(first, then projector) projector {
	if first == nil {
		return then
	}
	return func(v reflect.Value) (reflect.Value, bool) {
		mid, ok := first(v)
		if !ok {
			return reflect.Value{}, false
		}
		return then(mid)
	}
}
