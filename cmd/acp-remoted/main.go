// acp-remoted serves the agent-session orchestration core over HTTP: prompt
// driving, live progress, and unified session history for remote UIs.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
