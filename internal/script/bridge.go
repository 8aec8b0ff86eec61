package script

import (
	"fmt"
	"reflect"
	"time"
	"unicode"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"

	"luascript-server/internal/logger"
	"luascript-server/internal/mainloop"
)

const hostObjectTypeName = "hostobject"

// Bridge mediates attribute access between the script worker and host Go
// objects. Primitive values cross directly; method calls are executed on
// the main loop with a per-call reply channel, so the worker never touches
// host state itself. Setters are fire-and-forget.
type Bridge struct {
	loop        *mainloop.Loop
	callTimeout time.Duration
}

type callResult struct {
	values []interface{}
	err    error
}

func newBridge(loop *mainloop.Loop) *Bridge {
	return &Bridge{loop: loop, callTimeout: 20 * time.Second}
}

// register installs the host-object metatable in the interpreter
func (b *Bridge) register(L *lua.LState) {
	mt := L.NewTypeMetatable(hostObjectTypeName)
	L.SetField(mt, "__index", L.NewFunction(b.index))
	L.SetField(mt, "__newindex", L.NewFunction(b.newIndex))
	L.SetField(mt, "__len", L.NewFunction(b.length))
}

// wrap converts a host Go value into a Lua value. Primitives convert
// directly; everything else becomes an opaque proxy userdata.
func (b *Bridge) wrap(L *lua.LState, v interface{}) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	switch x := v.(type) {
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int8:
		return lua.LNumber(x)
	case int16:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint:
		return lua.LNumber(x)
	case uint8:
		return lua.LNumber(x)
	case uint16:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case lua.LValue:
		return x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return lua.LNil
	}

	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(hostObjectTypeName))
	return ud
}

// unwrap converts a Lua value into a host Go value
func unwrap(v lua.LValue) interface{} {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LUserData:
		return x.Value
	case *lua.LTable:
		return tableToGo(x)
	default:
		return v.String()
	}
}

// tableToGo converts a Lua table to a slice when it has integer keys,
// otherwise to a string-keyed map
func tableToGo(t *lua.LTable) interface{} {
	maxN := 0
	t.ForEach(func(key, _ lua.LValue) {
		if n, ok := key.(lua.LNumber); ok && int(n) > maxN {
			maxN = int(n)
		}
	})

	if maxN > 0 {
		arr := make([]interface{}, maxN)
		t.ForEach(func(key, val lua.LValue) {
			if n, ok := key.(lua.LNumber); ok {
				arr[int(n)-1] = unwrap(val)
			}
		})
		return arr
	}

	obj := make(map[string]interface{})
	t.ForEach(func(key, val lua.LValue) {
		if s, ok := key.(lua.LString); ok {
			obj[string(s)] = unwrap(val)
		}
	})
	return obj
}

// index implements obj.attr and obj[i] for host objects
func (b *Bridge) index(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.Get(2)

	if n, ok := key.(lua.LNumber); ok {
		return b.indexSequence(L, ud.Value, int(n))
	}

	name := L.CheckString(2)
	obj := ud.Value

	if method, ok := lookupMethod(obj, name); ok {
		L.Push(b.proxy(L, name, obj, method))
		return 1
	}

	field, ok := lookupField(obj, name)
	if !ok {
		L.RaiseError("object has no attribute %q", name)
		return 0
	}

	switch field.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		L.Push(b.wrap(L, field.Interface()))
	case reflect.Func:
		if field.IsNil() {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(b.proxy(L, name, obj, field))
	case reflect.Slice, reflect.Array:
		// sequences come through as opaque proxies usable with the list
		// helper and integer indexing
		L.Push(b.wrap(L, field.Interface()))
	default:
		L.RaiseError("type %q is not allowed in script code, trying to access attribute %q", field.Kind().String(), name)
		return 0
	}
	return 1
}

func (b *Bridge) indexSequence(L *lua.LState, obj interface{}, i int) int {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		L.RaiseError("object is not a sequence")
		return 0
	}
	if i < 1 || i > rv.Len() {
		L.RaiseError("sequence index %d out of range", i)
		return 0
	}
	L.Push(b.wrap(L, rv.Index(i-1).Interface()))
	return 1
}

// newIndex implements obj.attr = value; the assignment is queued on the
// main loop and the worker does not wait for it
func (b *Bridge) newIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	name := L.CheckString(2)
	value := unwrap(L.Get(3))
	obj := ud.Value

	b.loop.Queue(func() {
		if err := setField(obj, name, value); err != nil {
			logger.Warn("Script attribute assignment failed: %v", err)
		}
	})
	return 0
}

func (b *Bridge) length(L *lua.LState) int {
	ud := L.CheckUserData(1)
	rv := reflect.ValueOf(ud.Value)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		L.RaiseError("object is not a sequence")
		return 0
	}
	L.Push(lua.LNumber(rv.Len()))
	return 1
}

// proxy returns a Lua function that executes the host call on the main
// loop and blocks the worker until the reply arrives or the timeout hits
func (b *Bridge) proxy(L *lua.LState, name string, receiver interface{}, fn reflect.Value) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		start := 1
		if top >= 1 {
			if ud, ok := L.Get(1).(*lua.LUserData); ok && sameHost(ud.Value, receiver) {
				// obj:method() calling convention, drop the receiver
				start = 2
			}
		}
		args := make([]interface{}, 0, top)
		for i := start; i <= top; i++ {
			args = append(args, unwrap(L.Get(i)))
		}

		reply := make(chan callResult, 1)
		queued := b.loop.Queue(func() {
			reply <- callOnLoop(fn, args)
		})
		if !queued {
			L.RaiseError("the call to the function %q was rejected", name)
			return 0
		}

		select {
		case res := <-reply:
			if res.err != nil {
				L.RaiseError("%s", res.err.Error())
				return 0
			}
			for _, v := range res.values {
				L.Push(b.wrap(L, v))
			}
			return len(res.values)
		case <-time.After(b.callTimeout):
			L.RaiseError("the call to the function %q timed out", name)
			return 0
		}
	})
}

// sameHost reports whether two host references point at the same object
func sameHost(a, b interface{}) bool {
	ra := reflect.ValueOf(a)
	rb := reflect.ValueOf(b)
	if ra.Kind() == reflect.Ptr && rb.Kind() == reflect.Ptr {
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

// lookupMethod finds an exported method by its Lua-side name
func lookupMethod(obj interface{}, name string) (reflect.Value, bool) {
	rv := reflect.ValueOf(obj)
	for _, candidate := range []string{name, exportName(name)} {
		if m := rv.MethodByName(candidate); m.IsValid() {
			return m, true
		}
	}
	return reflect.Value{}, false
}

// lookupField finds an exported struct field by its Lua-side name
func lookupField(obj interface{}, name string) (reflect.Value, bool) {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	for _, candidate := range []string{name, exportName(name)} {
		if f := rv.FieldByName(candidate); f.IsValid() && f.CanInterface() {
			return f, true
		}
	}
	return reflect.Value{}, false
}

// exportName maps a Lua attribute name to the exported Go identifier by
// upper-casing the first rune
func exportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// setField assigns a value to an exported struct field, converting the
// unwrapped Lua value to the field's type
func setField(obj interface{}, name string, value interface{}) error {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return fmt.Errorf("object is nil")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("object has no settable attributes")
	}

	var field reflect.Value
	for _, candidate := range []string{name, exportName(name)} {
		if f := rv.FieldByName(candidate); f.IsValid() && f.CanSet() {
			field = f
			break
		}
	}
	if !field.IsValid() {
		return fmt.Errorf("object has no settable attribute %q", name)
	}

	converted, err := convertArg(value, field.Type())
	if err != nil {
		return err
	}
	field.Set(converted)
	return nil
}

// convertArg adapts an unwrapped Lua value to the target Go type
func convertArg(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// callOnLoop performs the reflective call; runs on the main loop
func callOnLoop(fn reflect.Value, args []interface{}) (result callResult) {
	defer func() {
		if r := recover(); r != nil {
			result = callResult{err: fmt.Errorf("%v", r)}
		}
	}()

	ft := fn.Type()
	in := make([]reflect.Value, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		if i < len(args) {
			converted, err := convertArg(args[i], ft.In(i))
			if err != nil {
				return callResult{err: err}
			}
			in[i] = converted
		} else {
			in[i] = reflect.Zero(ft.In(i))
		}
	}

	outs := fn.Call(in)

	// a trailing error return becomes the error slot
	if n := len(outs); n > 0 && outs[n-1].Type() == errorType {
		if !outs[n-1].IsNil() {
			return callResult{err: outs[n-1].Interface().(error)}
		}
		outs = outs[:n-1]
	}

	values := make([]interface{}, len(outs))
	for i, out := range outs {
		values[i] = out.Interface()
	}
	return callResult{values: values}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
