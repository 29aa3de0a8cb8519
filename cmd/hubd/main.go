package main

import (
	"flag"

	"github.com/activityhub/activityhub/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (overrides ~/.activityhub/config.toml)")
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag, Addr: *addrFlag}),
	)

	app.Run()
}
