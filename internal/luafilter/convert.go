package luafilter

import (
	"fmt"

	glua "github.com/yuin/gopher-lua"
)

// goToLuaValue converts a Go value to a Lua value
func goToLuaValue(L *glua.LState, v any) glua.LValue {
	switch val := v.(type) {
	case nil:
		return glua.LNil
	case bool:
		return glua.LBool(val)
	case int:
		return glua.LNumber(val)
	case int64:
		return glua.LNumber(val)
	case float64:
		return glua.LNumber(val)
	case string:
		return glua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, goToLuaValue(L, item))
		}
		return tbl
	case map[string]any:
		if val == nil {
			return glua.LNil
		}
		tbl := L.NewTable()
		for k, v := range val {
			tbl.RawSetString(k, goToLuaValue(L, v))
		}
		return tbl
	default:
		return glua.LString(fmt.Sprintf("%v", v))
	}
}

// luaToGo converts a Lua value to a Go value. Tables with only positive
// integer keys become slices, others become maps.
func luaToGo(v glua.LValue) any {
	switch val := v.(type) {
	case glua.LString:
		return string(val)
	case glua.LNumber:
		return float64(val)
	case glua.LBool:
		return bool(val)
	case *glua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ glua.LValue) {
			num, ok := k.(glua.LNumber)
			if !ok || num < 1 || float64(num) != float64(int(num)) {
				isArray = false
				return
			}
			if int(num) > maxIdx {
				maxIdx = int(num)
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v glua.LValue) {
				arr[int(k.(glua.LNumber))-1] = luaToGo(v)
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v glua.LValue) {
			obj[glua.LVAsString(k)] = luaToGo(v)
		})
		return obj
	case *glua.LNilType:
		return nil
	default:
		return v.String()
	}
}
