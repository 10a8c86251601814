package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/mbenevides/hermes/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (TOML)")
	flag.Parse()

	// Optional; real deployments set HERMES_JWT_SECRET in the environment.
	_ = godotenv.Load()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
