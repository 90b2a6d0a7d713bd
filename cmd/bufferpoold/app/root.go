package app

import (
	"context"

	"github.com/kvarch/bufferpoold/src/cli"
)

var rootCmd = cli.Init("bufferpoold")

func MustExecute(ctx context.Context) {
	initStart()
	rootCmd.MustExecute(ctx)
}
