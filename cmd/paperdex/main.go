// Command paperdex indexes scientific papers as embedded chunks and answers
// semantic queries over them.
package main

import (
	"os"

	"github.com/custodia-labs/paperdex/internal/adapters/driving/cli"
)

// version is set by the linker: -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
