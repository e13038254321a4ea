package daemon

import (
	"log/slog"
	"net/http"

	_ "net/http/pprof"
)

func startPprof(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	go func() {
		// DefaultServeMux carries the pprof handlers from the blank import.
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Info("pprof server stopped", "addr", addr, "err", err)
		}
	}()
}
