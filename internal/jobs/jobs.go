// Package jobs holds the periodic maintenance tasks run next to the API:
// heartbeat, low-stock restock, the CRM report and order reminders.
package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

// Timestamp layouts used in the job logs.
const (
	heartbeatLayout = "02/01/2006-15:04:05"
	logLayout       = "2006-01-02 15:04:05"
)

// Job is one named unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Restocker runs the low-stock restock mutation.
type Restocker interface {
	UpdateLowStockProducts(ctx context.Context) (core.UpdateLowStockResult, error)
}

// Reader lists the records the report and reminder jobs read.
type Reader interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// LogFile appends lines to a text file, creating it and its directory on
// first use.
type LogFile struct {
	mu   sync.Mutex
	path string
}

// NewLogFile returns a LogFile writing to path.
func NewLogFile(path string) *LogFile { return &LogFile{path: path} }

// Path returns the file path.
func (l *LogFile) Path() string { return l.path }

// Append writes each line followed by a newline.
func (l *LogFile) Append(lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("append %s: %w", l.path, err)
		}
	}
	return f.Close()
}
