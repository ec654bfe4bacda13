package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var hotplug bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the port list every time it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			enum, opts, err := ctx.monitorOptions(logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			monitor := serial.NewMonitor(enum, func(ev serial.Event) {
				if ev.Type == serial.EventPortsChanged {
					fmt.Fprintln(out, formatPortsLine(ev))
				}
			}, opts...)

			if err := monitor.Start(runCtx); err != nil {
				return err
			}
			defer func() {
				monitor.Stop()
				monitor.Wait()
			}()

			if !cmd.Flags().Changed("hotplug") {
				hotplug = cfg.Monitor.Hotplug
			}
			if hotplug {
				trigger := serial.NewHotplugTrigger(monitor.Kick, logger)
				if err := trigger.Start(runCtx); err != nil {
					return err
				}
				defer trigger.Stop()
			}

			logger.Info("watching serial ports",
				logging.String(logging.FieldEventType, "watch_started"),
				logging.Duration("interval", cfg.MonitorInterval()),
				logging.Bool("hotplug", hotplug),
			)
			<-runCtx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&hotplug, "hotplug", false, "Rescan immediately on udev tty events (default from monitor.hotplug)")
	return cmd
}

// formatPortsLine renders a snapshot as "15:04:05 ports: a, b".
func formatPortsLine(ev serial.Event) string {
	list := "none"
	if len(ev.Ports) > 0 {
		list = strings.Join(ev.Ports, ", ")
	}
	return fmt.Sprintf("%s ports: %s", ev.Time.Format(time.TimeOnly), list)
}
