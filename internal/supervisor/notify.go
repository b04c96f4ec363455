package supervisor

import "github.com/coreos/go-systemd/v22/daemon"

// Notifier reports supervisor state to a service manager.
type Notifier interface {
	Ready() error
	Watchdog() error
	Stopping() error
}

// SystemdNotifier sends sd_notify messages when NOTIFY_SOCKET is set and is a
// no-op otherwise.
type SystemdNotifier struct {
	watchdog bool
}

// NewSystemdNotifier returns a notifier for the current environment.
// Watchdog pings are only sent when the unit enables WatchdogSec.
func NewSystemdNotifier() *SystemdNotifier {
	d, err := daemon.SdWatchdogEnabled(false)
	return &SystemdNotifier{watchdog: err == nil && d > 0}
}

func (n *SystemdNotifier) Ready() error { return n.send(daemon.SdNotifyReady) }

func (n *SystemdNotifier) Watchdog() error {
	if !n.watchdog {
		return nil
	}
	return n.send(daemon.SdNotifyWatchdog)
}

func (n *SystemdNotifier) Stopping() error { return n.send(daemon.SdNotifyStopping) }

func (n *SystemdNotifier) send(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

type nopNotifier struct{}

func (nopNotifier) Ready() error    { return nil }
func (nopNotifier) Watchdog() error { return nil }
func (nopNotifier) Stopping() error { return nil }
