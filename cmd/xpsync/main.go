// Package main is the single-binary entrypoint for xpsync: the client sync
// commands and the reference stats gateway.
package main

import "github.com/edugame/xpsync/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
