package xevent

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// HandlerPrefix marks exported methods that are discovered as handlers without an annotation.
const HandlerPrefix = "OnEvent"

// Subscribe is the per-method handler declaration.
type Subscribe struct {
	Mode     ThreadMode
	Priority int
	Sticky   bool
}

// Annotated is implemented by subscribers that declare handlers explicitly. Keys are method
// names; the map must only depend on the subscriber's type, it is read once per type.
type Annotated interface {
	SubscriberAnnotations() map[string]Subscribe
}

// SubscriberMethod is an immutable, cached handler descriptor.
type SubscriberMethod struct {
	Owner     reflect.Type
	Name      string
	EventType reflect.Type
	Mode      ThreadMode
	Priority  int
	Sticky    bool

	invoke func(ctx context.Context, subscriber, event any) error
}

func (m *SubscriberMethod) String() string {
	return fmt.Sprintf("%v.%s(%v)", m.Owner, m.Name, m.EventType)
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// modeSuffixes select the thread mode of an unannotated handler from its name, as in
// OnEventMainThread or OnEventOrderAsync.
var modeSuffixes = []struct {
	suffix string
	mode   ThreadMode
}{
	{"MainOrdered", MainOrdered},
	{"MainThread", Main},
	{"BackgroundThread", Background},
	{"Async", Async},
}

func modeFromName(name string) ThreadMode {
	rest := strings.TrimPrefix(name, HandlerPrefix)
	for _, s := range modeSuffixes {
		if strings.HasSuffix(rest, s.suffix) {
			return s.mode
		}
	}
	return Posting
}

// scanCache holds reflective scans for the whole process. Scans depend only on the type and
// on whether malformed prefix methods are skipped, so buses share them.
var scanCache sync.Map // scanKey -> []*SubscriberMethod

type scanKey struct {
	t       reflect.Type
	lenient bool
}

type methodFinder struct {
	indexes     []SubscriberInfoIndex
	ignoreIndex bool
	lenient     map[reflect.Type]struct{}
	cache       sync.Map // reflect.Type -> []*SubscriberMethod
}

// newMethodFinder builds a finder. Prefix methods of the skipVerify types that are not valid
// handlers are ignored instead of failing the registration.
func newMethodFinder(indexes []SubscriberInfoIndex, ignoreIndex bool, skipVerify ...reflect.Type) *methodFinder {
	f := &methodFinder{indexes: indexes, ignoreIndex: ignoreIndex}
	for _, t := range skipVerify {
		if t == nil {
			continue
		}
		if f.lenient == nil {
			f.lenient = make(map[reflect.Type]struct{})
		}
		f.lenient[t] = struct{}{}
	}
	return f
}

// skipsVerification accepts both the registered type and, for pointers, its element type.
func (f *methodFinder) skipsVerification(t reflect.Type) bool {
	if _, ok := f.lenient[t]; ok {
		return true
	}
	if t.Kind() == reflect.Pointer {
		_, ok := f.lenient[t.Elem()]
		return ok
	}
	return false
}

// find returns the handlers of subscriber's type, consulting the bus cache, then the indexes,
// then the process-wide reflective scans.
func (f *methodFinder) find(subscriber any) ([]*SubscriberMethod, error) {
	t := reflect.TypeOf(subscriber)
	if cached, ok := f.cache.Load(t); ok {
		return cached.([]*SubscriberMethod), nil
	}

	var (
		methods []*SubscriberMethod
		claimed = make(map[string]struct{})
		scan    = true
	)
	if !f.ignoreIndex {
		if info, ok := f.lookupIndex(t); ok {
			for i := range info.Methods {
				m, err := fromMethodInfo(t, &info.Methods[i])
				if err != nil {
					return nil, err
				}
				methods = append(methods, m)
				claimed[m.Name] = struct{}{}
			}
			scan = info.CheckEmbedded
		}
	}
	if scan {
		found, err := f.scan(subscriber, t, claimed)
		if err != nil {
			return nil, err
		}
		methods = append(methods, found...)
	}
	if len(methods) == 0 {
		return nil, &BindingError{Type: t, Reason: "no exported " + HandlerPrefix + "* or annotated handler methods"}
	}

	actual, _ := f.cache.LoadOrStore(t, methods)
	return actual.([]*SubscriberMethod), nil
}

func (f *methodFinder) lookupIndex(t reflect.Type) (*SubscriberInfo, bool) {
	for _, idx := range f.indexes {
		if info, ok := idx.SubscriberInfo(t); ok && info != nil {
			return info, true
		}
	}
	return nil, false
}

// scan returns the reflective handlers of t. Only full scans are shared through scanCache;
// a scan that has to skip index-claimed names is memoized by the caller alone.
func (f *methodFinder) scan(subscriber any, t reflect.Type, claimed map[string]struct{}) ([]*SubscriberMethod, error) {
	lenient := f.skipsVerification(t)
	if len(claimed) > 0 {
		return scanMethods(subscriber, t, claimed, lenient)
	}
	key := scanKey{t: t, lenient: lenient}
	if cached, ok := scanCache.Load(key); ok {
		return cached.([]*SubscriberMethod), nil
	}
	found, err := scanMethods(subscriber, t, claimed, lenient)
	if err != nil {
		return nil, err
	}
	actual, _ := scanCache.LoadOrStore(key, found)
	return actual.([]*SubscriberMethod), nil
}

// clear drops this finder's descriptors and the shared reflective scans.
func (f *methodFinder) clear() {
	f.cache.Clear()
	scanCache.Clear()
}

func fromMethodInfo(owner reflect.Type, mi *MethodInfo) (*SubscriberMethod, error) {
	switch {
	case mi.Name == "":
		return nil, &BindingError{Type: owner, Reason: "index entry without method name"}
	case mi.EventType == nil:
		return nil, &BindingError{Type: owner, Method: mi.Name, Reason: "index entry without event type"}
	case mi.Invoke == nil:
		return nil, &BindingError{Type: owner, Method: mi.Name, Reason: "index entry without invoker"}
	case !mi.Mode.valid():
		return nil, &BindingError{Type: owner, Method: mi.Name, Reason: "unknown thread mode " + mi.Mode.String()}
	}
	return &SubscriberMethod{
		Owner:     owner,
		Name:      mi.Name,
		EventType: mi.EventType,
		Mode:      mi.Mode,
		Priority:  mi.Priority,
		Sticky:    mi.Sticky,
		invoke:    mi.Invoke,
	}, nil
}

// scanMethods discovers handlers by reflection, skipping names in claimed. With lenient set,
// unannotated prefix methods that are not valid handlers are left out.
func scanMethods(subscriber any, t reflect.Type, claimed map[string]struct{}, lenient bool) ([]*SubscriberMethod, error) {
	var annotations map[string]Subscribe
	if a, ok := subscriber.(Annotated); ok {
		annotations = a.SubscriberAnnotations()
	}

	// Annotated names first so a missing or unexported method is reported even when nothing else binds.
	for name := range annotations {
		if _, ok := claimed[name]; ok {
			continue
		}
		if _, ok := t.MethodByName(name); ok {
			continue
		}
		reason := "annotated method does not exist"
		if r, _ := utf8.DecodeRuneInString(name); !unicode.IsUpper(r) {
			reason = "annotated method is not exported"
		}
		return nil, &BindingError{Type: t, Method: name, Reason: reason}
	}

	var out []*SubscriberMethod
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if _, ok := claimed[m.Name]; ok {
			continue
		}
		decl, annotated := annotations[m.Name]
		if !annotated {
			if !strings.HasPrefix(m.Name, HandlerPrefix) {
				continue
			}
			decl = Subscribe{Mode: modeFromName(m.Name)}
		}
		if !decl.Mode.valid() {
			return nil, &BindingError{Type: t, Method: m.Name, Reason: "unknown thread mode " + decl.Mode.String()}
		}
		sm, err := bindMethod(t, m, decl)
		if err != nil {
			if lenient && !annotated {
				continue
			}
			return nil, err
		}
		out = append(out, sm)
	}
	return out, nil
}

// bindMethod validates m's signature: func([context.Context,] E) [error].
func bindMethod(owner reflect.Type, m reflect.Method, decl Subscribe) (*SubscriberMethod, error) {
	mt := m.Type // includes the receiver as In(0)
	if mt.IsVariadic() {
		return nil, &BindingError{Type: owner, Method: m.Name, Reason: "variadic handlers are not supported"}
	}

	withCtx := false
	switch mt.NumIn() {
	case 2:
	case 3:
		if mt.In(1) != contextType {
			return nil, &BindingError{Type: owner, Method: m.Name, Reason: "first of two parameters must be context.Context"}
		}
		withCtx = true
	default:
		return nil, &BindingError{
			Type:   owner,
			Method: m.Name,
			Reason: fmt.Sprintf("must have exactly one event parameter, has %d parameters", mt.NumIn()-1),
		}
	}

	switch {
	case mt.NumOut() == 0:
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
	default:
		return nil, &BindingError{Type: owner, Method: m.Name, Reason: "may only return error"}
	}

	eventType := mt.In(mt.NumIn() - 1)
	fn := m.Func
	hasErr := mt.NumOut() == 1

	return &SubscriberMethod{
		Owner:     owner,
		Name:      m.Name,
		EventType: eventType,
		Mode:      decl.Mode,
		Priority:  decl.Priority,
		Sticky:    decl.Sticky,
		invoke: func(ctx context.Context, subscriber, event any) error {
			in := make([]reflect.Value, 0, 3)
			in = append(in, reflect.ValueOf(subscriber))
			if withCtx {
				in = append(in, reflect.ValueOf(&ctx).Elem())
			}
			if event == nil {
				in = append(in, reflect.Zero(eventType))
			} else {
				in = append(in, reflect.ValueOf(event))
			}
			out := fn.Call(in)
			if hasErr && !out[0].IsNil() {
				return out[0].Interface().(error)
			}
			return nil
		},
	}, nil
}
