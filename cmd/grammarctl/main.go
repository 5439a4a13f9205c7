package main

import (
	"fmt"
	"os"

	"github.com/roach88/grammarctl/internal/cli"
	_ "github.com/roach88/grammarctl/internal/recognizer/azure"     // Register the Azure backend
	_ "github.com/roach88/grammarctl/internal/recognizer/simulated" // Register the simulated backend
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
