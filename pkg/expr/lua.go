// Package expr implements the expression bridge used to evaluate
// conditionExpression text on sequence flows and exclusiveGateway branches
// (spec §4.4).
package expr

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/pkg/value"
)

// Evaluator evaluates a scalar expression against a variable snapshot. The
// bridge sits behind this narrow interface so it can be swapped for any
// other scalar expression evaluator without touching the operator queue.
type Evaluator interface {
	// Eval runs expression with vars installed as bindings and returns the
	// resulting scalar.
	Eval(expression string, vars map[string]value.Value) (value.Value, error)
	// EvalBool is a convenience wrapper used by exclusiveGateway branch
	// selection: any evaluation error is treated as non-matching, never
	// propagated, per spec §4.4.
	EvalBool(expression string, vars map[string]value.Value) bool
}

// LuaEvaluator is a pooled-*lua.LState evaluator, grounded on
// pkg/transformer/lua.go's LuaTransformer: where that transformer installs
// one "msg" table global, this evaluator installs one Lua global per
// variable name directly, matching spec §4.4's "bindings are installed as
// global properties".
type LuaEvaluator struct {
	pool *sync.Pool
}

func NewLuaEvaluator() *LuaEvaluator {
	return &LuaEvaluator{
		pool: &sync.Pool{
			New: func() any { return lua.NewState() },
		},
	}
}

func (e *LuaEvaluator) Eval(expression string, vars map[string]value.Value) (value.Value, error) {
	const op = "expr.LuaEvaluator.Eval"

	L := e.pool.Get().(*lua.LState)
	defer e.pool.Put(L)
	defer clearGlobals(L, vars)

	for name, v := range vars {
		L.SetGlobal(name, toLValue(v))
	}

	if err := L.DoString("return (" + expression + ")"); err != nil {
		return value.Value{}, apperr.Wrap(apperr.InternalError, op, "lua expression error", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return fromLValue(ret), nil
}

func (e *LuaEvaluator) EvalBool(expression string, vars map[string]value.Value) bool {
	v, err := e.Eval(expression, vars)
	if err != nil {
		return false
	}
	b, err := v.AsBool()
	if err == nil {
		return b
	}
	// Lenient fallback for non-bool returns (e.g. `amount > 10` style
	// comparisons return a Lua boolean already; this branch only covers a
	// bare numeric/string expression used as a truthiness check).
	switch v.Kind {
	case value.TypeInt:
		return v.Int != 0
	case value.TypeDouble:
		return v.Double != 0
	case value.TypeString:
		return v.Str != ""
	default:
		return false
	}
}

// clearGlobals prevents one evaluation's bindings from leaking into the next
// user of a pooled *lua.LState.
func clearGlobals(L *lua.LState, vars map[string]value.Value) {
	for name := range vars {
		L.SetGlobal(name, lua.LNil)
	}
}

func toLValue(v value.Value) lua.LValue {
	switch v.Kind {
	case value.TypeInt:
		return lua.LNumber(v.Int)
	case value.TypeDouble:
		return lua.LNumber(v.Double)
	case value.TypeString:
		return lua.LString(v.Str)
	case value.TypeBool:
		return lua.LBool(v.Bool)
	default:
		return lua.LNil
	}
}

func fromLValue(v lua.LValue) value.Value {
	switch val := v.(type) {
	case lua.LBool:
		return value.Bool(bool(val))
	case lua.LNumber:
		f := float64(val)
		if f == float64(int32(f)) {
			return value.Int(int32(f))
		}
		return value.Double(f)
	case lua.LString:
		return value.Str(string(val))
	default:
		return value.Str("")
	}
}
