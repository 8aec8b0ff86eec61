package script

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// safeFunctions whitelists the globals a script may use. Globals not
// listed are removed before the script body runs; for listed tables,
// members not listed are removed too.
var safeFunctions = map[string][]string{
	"_VERSION":  nil,
	"assert":    nil,
	"coroutine": {"create", "resume", "running", "status", "wrap", "yield"},
	"error":     nil,
	"ipairs":    nil,
	"math": {"abs", "acos", "asin", "atan", "atan2", "ceil", "cos", "cosh", "deg",
		"exp", "floor", "fmod", "frexp", "huge", "ldexp", "log", "log10", "max",
		"min", "modf", "pi", "pow", "rad", "random", "randomseed", "sin", "sinh",
		"sqrt", "tan", "tanh"},
	"next":   nil,
	"os":     {"clock", "date", "difftime", "time"},
	"pairs":  nil,
	"pcall":  nil,
	"print":  nil,
	"select": nil,
	"string": {"byte", "char", "find", "format", "gmatch", "gsub", "len", "lower",
		"match", "rep", "reverse", "sub", "upper"},
	"table":    {"concat", "insert", "maxn", "remove", "sort"},
	"tonumber": nil,
	"tostring": nil,
	"type":     nil,
	"unpack":   nil,
	"xpcall":   nil,
}

// sleepSource installs sleep as guest code so it can yield cooperatively.
const sleepSource = `function sleep(ms)
suspend(ms)
coroutine.yield()
end`

// sandbox prunes the interpreter's globals down to the whitelist and
// installs the list helper
func sandbox(L *lua.LState, bridge *Bridge) {
	globals := L.G.Global

	var remove []string
	globals.ForEach(func(key, value lua.LValue) {
		name, ok := key.(lua.LString)
		if !ok {
			return
		}
		if string(name) == "_G" {
			// keep _G to not start recursion
			return
		}
		allowed, found := safeFunctions[string(name)]
		if !found {
			remove = append(remove, string(name))
			return
		}
		if tbl, ok := value.(*lua.LTable); ok {
			pruneTable(tbl, allowed)
		}
	})
	for _, name := range remove {
		globals.RawSetString(name, lua.LNil)
	}

	installList(L, bridge)
}

func pruneTable(tbl *lua.LTable, allowed []string) {
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}

	var remove []string
	tbl.ForEach(func(key, _ lua.LValue) {
		if name, ok := key.(lua.LString); ok && !keep[string(name)] {
			remove = append(remove, string(name))
		}
	})
	for _, name := range remove {
		tbl.RawSetString(name, lua.LNil)
	}
}

// installList binds the list helper for working with host-native
// sequences: list.new builds one, list.len measures one, and list.slice
// extracts a 1-based inclusive subrange (string.sub convention).
func installList(L *lua.LState, bridge *Bridge) {
	list := L.NewTable()
	L.SetField(list, "new", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		seq := make([]interface{}, 0, top)
		for i := 1; i <= top; i++ {
			seq = append(seq, unwrap(L.Get(i)))
		}
		L.Push(bridge.wrap(L, seq))
		return 1
	}))
	L.SetField(list, "len", L.NewFunction(func(L *lua.LState) int {
		rv, ok := sequenceOf(L.CheckUserData(1).Value)
		if !ok {
			L.RaiseError("list.len: object is not a sequence")
			return 0
		}
		L.Push(lua.LNumber(rv.Len()))
		return 1
	}))
	L.SetField(list, "slice", L.NewFunction(func(L *lua.LState) int {
		rv, ok := sequenceOf(L.CheckUserData(1).Value)
		if !ok {
			L.RaiseError("list.slice: object is not a sequence")
			return 0
		}
		start := 1
		end := rv.Len()
		step := 1
		if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
			start = int(L.CheckNumber(2))
		}
		if L.GetTop() >= 3 && L.Get(3) != lua.LNil {
			end = int(L.CheckNumber(3))
		}
		if L.GetTop() >= 4 && L.Get(4) != lua.LNil {
			step = int(L.CheckNumber(4))
		}
		if step <= 0 {
			step = 1
		}
		if start < 1 {
			start = 1
		}
		if end > rv.Len() {
			end = rv.Len()
		}

		out := make([]interface{}, 0)
		for i := start; i <= end; i += step {
			out = append(out, rv.Index(i-1).Interface())
		}
		L.Push(bridge.wrap(L, out))
		return 1
	}))
	L.SetGlobal("list", list)
}

func sequenceOf(v interface{}) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, false
	}
	return rv, true
}
