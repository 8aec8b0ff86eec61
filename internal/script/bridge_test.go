package script

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"luascript-server/internal/mainloop"
)

type testHost struct {
	Label string
	Count int
}

func (h *testHost) Greet(name string) string { return "hello " + name }

func (h *testHost) Add(a, b float64) float64 { return a + b }

func (h *testHost) Pair() (string, int) { return "x", 7 }

func (h *testHost) Fail() error { return errors.New("boom") }

func (h *testHost) Items() []string { return []string{"alpha", "beta", "gamma"} }

func (h *testHost) Fetch(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	return "value:" + key, nil
}

func bridgeFixture(t *testing.T) (*lua.LState, *Bridge, *testHost) {
	t.Helper()
	loop := mainloop.New(16)
	loop.Start()
	t.Cleanup(loop.Stop)

	L := lua.NewState()
	t.Cleanup(L.Close)

	bridge := newBridge(loop)
	bridge.register(L)

	host := &testHost{Label: "bench", Count: 3}
	L.SetGlobal("host", bridge.wrap(L, host))
	return L, bridge, host
}

func TestBridge_MethodCall(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	assert.Equal(t, lua.LString("hello bob"), evalString(t, L, `return host:greet("bob")`))
	assert.Equal(t, lua.LNumber(5), evalString(t, L, `return host:add(2, 3)`))
}

func TestBridge_MultipleReturnValues(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	require.NoError(t, L.DoString(`a, b = host:pair()`))
	assert.Equal(t, lua.LString("x"), L.GetGlobal("a"))
	assert.Equal(t, lua.LNumber(7), L.GetGlobal("b"))
}

func TestBridge_ErrorReturnRaises(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	err := L.DoString(`host:fail()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// a nil trailing error is stripped from the results
	assert.Equal(t, lua.LString("value:k"), evalString(t, L, `return host:fetch("k")`))
}

func TestBridge_FieldAccess(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	assert.Equal(t, lua.LString("bench"), evalString(t, L, `return host.label`))
	assert.Equal(t, lua.LNumber(3), evalString(t, L, `return host.count`))
}

func TestBridge_UnknownAttribute(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	err := L.DoString(`return host.nothing`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no attribute")
}

func TestBridge_SetterIsAsynchronous(t *testing.T) {
	loop := mainloop.New(16)
	loop.Start()
	t.Cleanup(loop.Stop)

	L := lua.NewState()
	t.Cleanup(L.Close)

	bridge := newBridge(loop)
	bridge.register(L)
	host := &testHost{Label: "bench", Count: 3}
	L.SetGlobal("host", bridge.wrap(L, host))

	// read through the loop so the check observes the same goroutine
	// that performs the assignment
	readCount := func() int {
		ch := make(chan int, 1)
		require.True(t, loop.Queue(func() { ch <- host.Count }))
		return <-ch
	}

	require.NoError(t, L.DoString(`host.count = 42`))
	require.Eventually(t, func() bool {
		return readCount() == 42
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_SequenceAccess(t *testing.T) {
	L, bridge, _ := bridgeFixture(t)
	L.SetGlobal("seq", bridge.wrap(L, []int{10, 20, 30}))

	assert.Equal(t, lua.LNumber(20), evalString(t, L, `return seq[2]`))
	assert.Equal(t, lua.LNumber(3), evalString(t, L, `return #seq`))

	err := L.DoString(`return seq[4]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestBridge_MethodReturningSequence(t *testing.T) {
	L, _, _ := bridgeFixture(t)

	// the returned list stays an opaque proxy but supports indexing
	assert.Equal(t, lua.LString("beta"), evalString(t, L, `
		local items = host:items()
		return items[2]
	`))
	assert.Equal(t, lua.LNumber(3), evalString(t, L, `return #host:items()`))
}

func TestBridge_CallTimeout(t *testing.T) {
	// loop is never started, so the queued call never executes
	loop := mainloop.New(16)

	L := lua.NewState()
	defer L.Close()

	bridge := newBridge(loop)
	bridge.callTimeout = 50 * time.Millisecond
	bridge.register(L)
	L.SetGlobal("host", bridge.wrap(L, &testHost{}))

	err := L.DoString(`host:greet("bob")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestBridge_WrapPrimitives(t *testing.T) {
	loop := mainloop.New(1)
	L := lua.NewState()
	defer L.Close()
	bridge := newBridge(loop)
	bridge.register(L)

	assert.Equal(t, lua.LNil, bridge.wrap(L, nil))
	assert.Equal(t, lua.LNumber(5), bridge.wrap(L, 5))
	assert.Equal(t, lua.LNumber(2.5), bridge.wrap(L, 2.5))
	assert.Equal(t, lua.LString("s"), bridge.wrap(L, "s"))
	assert.Equal(t, lua.LTrue, bridge.wrap(L, true))

	var absent *testHost
	assert.Equal(t, lua.LNil, bridge.wrap(L, absent))
}

func TestBridge_UnwrapTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`arr = {1, 2, 3}; obj = {a = 1, b = "two"}`))

	arr, ok := unwrap(L.GetGlobal("arr")).([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, arr)

	obj, ok := unwrap(L.GetGlobal("obj")).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
	assert.Equal(t, "two", obj["b"])
}
