package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/spotlabel/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		ConfigPath: os.Getenv("SPOTLABEL_CONFIG"),
		Logger:     logger,
	})

	if err := runner.command().Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
