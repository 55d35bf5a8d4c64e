package jobs

import (
	"context"
	"fmt"
)

// Heartbeat records that the CRM is alive after checking the store answers.
type Heartbeat struct {
	Store Pinger
	Log   *LogFile
	Clock Clock
}

func (h *Heartbeat) Name() string { return "heartbeat" }

// Run appends "DD/MM/YYYY-HH:MM:SS CRM is alive". Nothing is written when
// the store is unreachable.
func (h *Heartbeat) Run(ctx context.Context) error {
	if err := h.Store.Ping(ctx); err != nil {
		return fmt.Errorf("heartbeat ping: %w", err)
	}
	return h.Log.Append(h.Clock.now().Format(heartbeatLayout) + " CRM is alive")
}
