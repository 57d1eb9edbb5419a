// Package main implements the iqrah CLI: content artifact install,
// session lifecycle (start/next/submit/complete/resume), ad-hoc review,
// and read-only debug introspection, over the iqrah-core library.
//
// # File Index
//
//   - main.go         - entry point
//   - root.go         - rootCmd, global flags, persistent logger/config setup
//   - app.go          - shared bootstrap: config, content store, memory repo,
//     scheduler/bandit/exercise/session engine wiring
//   - setup_cmd.go    - `setup install` content artifact installation
//   - session_cmd.go  - `session start|next|submit|complete|resume`
//   - adhoc_cmd.go    - `adhoc review`
//   - debug_cmd.go    - `debug energy`
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
