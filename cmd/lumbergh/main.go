package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rain-1/lumbergh/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(runServe)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command. run receives the merged configuration
// once flags, environment and the optional config file have been loaded.
func buildRoot(run runFunc) *cobra.Command {
	v := config.New()
	flags := &Flags{}

	root := &cobra.Command{
		Use:   "lumbergh [flags] <root>",
		Short: "Supervise one process per service directory",
		Long: `Lumbergh keeps one process running for every subdirectory of a service
root. A service named NAME lives in <root>/NAME and is started by running
<root>/NAME/NAME with its output appended to stdout.log and stderr.log in the
same directory. Adding a directory starts a service; removing it kills the
service's whole process group.

Examples:
  lumbergh /srv/services
  lumbergh --interval=5s --watch /srv/services
  lumbergh --config=/etc/lumbergh.toml --metrics-listen=:9090 /srv/services
  lumbergh --daemonize --pidfile=/run/lumbergh.pid --logfile=/var/log/lumbergh.log /srv/services`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors above print usage; runtime errors below do not.
			cmd.SilenceUsage = true
			cfg, err := loadConfig(v, cmd.Flags(), flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, flags, args[0])
		},
	}

	bindFlags(v, root.Flags(), flags)
	return root
}
