// Package systemd reports service readiness to the service manager when
// running as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify state updates.
type Notifier struct {
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier returns a notifier logging to logger.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Ready reports READY=1 and starts watchdog pings if the unit sets
// WatchdogSec.
func (n *Notifier) Ready(status string) {
	n.notify(daemon.SdNotifyReady + "\nSTATUS=" + status)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.watchdog(ctx, interval/2)
}

// Status updates the STATUS= line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.notify("STATUS=" + status)
}

// Stopping reports STOPPING=1 and ends watchdog pings.
func (n *Notifier) Stopping() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
		n.cancel = nil
	}
	n.notify(daemon.SdNotifyStopping)
}

func (n *Notifier) watchdog(ctx context.Context, every time.Duration) {
	defer close(n.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
