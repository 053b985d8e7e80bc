// File: cmd/rogue/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roguesec/rogue/cmd"
	"github.com/roguesec/rogue/internal/observability"
)

const asciiArt = `
   ▄▄▄▄▄  rogue
   █   █  LLM-powered web security agent
   █▀▀▀▄  -- happy hunting, use responsibly --
   ▀   ▀
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	fmt.Print(asciiArt)

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
