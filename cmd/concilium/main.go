// cmd/concilium/main.go
package main

import (
	cmd "github.com/mwiater/concilium/internal/cli"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main injects build information and hands control to the cobra root
// command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
