package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// interruptContext is canceled on Ctrl-C or SIGTERM. Agent processes run in
// their own process group and never see the terminal's signals, so only a
// canceled context reaps them.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
