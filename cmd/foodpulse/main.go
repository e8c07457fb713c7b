package main

import (
	"context"
	"os"

	"foodpulse/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
