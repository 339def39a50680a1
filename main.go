package main

import (
	"fmt"
	"os"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCode(err))
	}
}
