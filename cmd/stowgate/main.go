package main

import "github.com/stowgate/stowgate/internal/cmd"

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
