package gpu

import (
	"log/slog"

	"github.com/gogpu/mandy"
)

// slogger returns the logger configured with mandy.SetLogger.
func slogger() *slog.Logger { return mandy.Logger() }
