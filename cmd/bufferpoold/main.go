package main

import (
	"context"

	"github.com/kvarch/bufferpoold/cmd/bufferpoold/app"
)

func main() {
	app.MustExecute(context.Background())
}
