// Command attendance runs the live attendance server.
package main

import (
	"log/slog"
	"os"

	"github.com/007-bg/Live-Attendance-System/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("attendance.exit", "err", err)
		os.Exit(1)
	}
}
