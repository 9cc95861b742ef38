package luafilter

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	glua "github.com/yuin/gopher-lua"
)

// openLog installs the log table: log.debug(msg, fields) and friends.
func openLog(L *glua.LState, name string) {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(logFunc(name, zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(logFunc(name, zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(logFunc(name, zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(logFunc(name, zerolog.ErrorLevel)))

	L.SetGlobal("log", mod)
}

func logFunc(name string, level zerolog.Level) glua.LGFunction {
	return func(L *glua.LState) int {
		msg := L.CheckString(1)

		event := log.WithLevel(level).Str("source", "lua").Str("filter", name)
		if tbl, ok := L.Get(2).(*glua.LTable); ok {
			tbl.ForEach(func(key, value glua.LValue) {
				event = event.Interface(glua.LVAsString(key), luaToGo(value))
			})
		}
		event.Msg(msg)

		return 0
	}
}
