package main

import (
	"log/slog"
	"os"

	"github.com/metinatakli/seat-reservation/internal/app"
)

func main() {
	err := app.Run()
	if err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
