// Package main runs the Heron URL shortener HTTP server.
package main

import (
	"go.uber.org/fx"

	heronFX "github.com/avolpi/heron/internal/fx"
)

func main() {
	fx.New(heronFX.HTTPServerModules).Run()
}
