package supervisor

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/rain-1/lumbergh/internal/process"
)

// ErrScan wraps failures to list the service root.
var ErrScan = errors.New("unable to scan service root")

// Result lists what one reconcile changed, in the order it was applied.
type Result struct {
	Enabled  []Enabled
	Disabled []string
	// Failed holds services whose teardown failed; they stay supervised and
	// are retried on the next reconcile.
	Failed []string
}

// Enabled is a service added to the table by a reconcile.
type Enabled struct {
	Name   string
	Handle process.Handle
}

// Reconciler brings the process table in line with the subdirectories of a
// service root.
type Reconciler struct {
	root   string
	mgr    *process.Manager
	logger *slog.Logger
}

func NewReconciler(root string, mgr *process.Manager, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{root: root, mgr: mgr, logger: logger}
}

// Root returns the service root directory.
func (r *Reconciler) Root() string { return r.root }

// Scan lists the names of the immediate subdirectories of the root. Symbolic
// links and regular files are not services.
func (r *Reconciler) Scan() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, errors.Wrapf(ErrScan, "%s: %v", r.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Reconcile disables every live service whose directory is gone, then enables
// every directory without a live record. Enabled records have no process;
// the next health pass launches them. If the root cannot be read the table is
// left untouched. If the table cannot hold every new service, nothing is
// enabled and the returned error wraps process.ErrTableFull.
func (r *Reconciler) Reconcile() (Result, error) {
	var res Result

	names, err := r.Scan()
	if err != nil {
		return res, err
	}

	table := r.mgr.Table()
	toDisable := make(map[string]process.Handle, table.Len())
	table.ForEachLive(func(h process.Handle, rec *process.Record) {
		toDisable[rec.Name] = h
	})

	var toEnable []string
	for _, name := range names {
		if _, ok := toDisable[name]; ok {
			delete(toDisable, name)
			continue
		}
		toEnable = append(toEnable, name)
	}

	// Disable in slot order so logs and events are deterministic.
	for _, h := range table.Handles() {
		rec, err := table.Get(h)
		if err != nil {
			continue
		}
		name := rec.Name
		if dh, ok := toDisable[name]; !ok || dh != h {
			continue
		}
		if err := r.mgr.Disable(h); err != nil {
			r.logger.Error("unable to disable service", "name", name, "error", err)
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Disabled = append(res.Disabled, name)
	}

	if avail := table.Available(); avail < len(toEnable) {
		return res, errors.Wrapf(process.ErrTableFull,
			"%d new services, %d free slots of %d", len(toEnable), avail, table.Cap())
	}

	for _, name := range toEnable {
		h, err := r.mgr.Enable(r.root, name)
		if err != nil {
			return res, errors.Wrapf(err, "enable %s", name)
		}
		r.logger.Info("service enabled", "name", name)
		res.Enabled = append(res.Enabled, Enabled{Name: name, Handle: h})
	}
	return res, nil
}
