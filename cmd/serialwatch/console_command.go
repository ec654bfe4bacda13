package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

func newConsoleCommand(ctx *commandContext) *cobra.Command {
	var baud int
	var reconnect bool
	var encodingName string

	cmd := &cobra.Command{
		Use:   "console <port>",
		Short: "Attach to a port and stream what it sends to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := strings.TrimSpace(args[0])
			if port == "" {
				return errors.New("port name is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("baud") {
				baud = cfg.Session.BaudRate
			}
			if baud <= 0 {
				return fmt.Errorf("baud rate must be positive, got %d", baud)
			}
			if !cmd.Flags().Changed("reconnect") {
				reconnect = cfg.Console.Reconnect
			}
			if !cmd.Flags().Changed("encoding") {
				encodingName = cfg.Console.Encoding
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			lock, err := acquirePortLock(cfg.Session.LockDir, port)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			out, err := newDecodingWriter(cmd.OutOrStdout(), encodingName)
			if err != nil {
				return err
			}
			defer out.Close()

			enum, monitorOpts, err := ctx.monitorOptions(logger)
			if err != nil {
				return err
			}
			sessionOpts, err := ctx.sessionOptions(logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			controller := newConsoleController(port, baud, reconnect, cfg.MonitorInterval(), out, logger)
			session := serial.NewSession(controller.handleSession, sessionOpts...)
			controller.session = session
			monitor := serial.NewMonitor(enum, controller.handleMonitor, monitorOpts...)

			if err := monitor.Start(runCtx); err != nil {
				return err
			}
			if cfg.Monitor.Hotplug {
				trigger := serial.NewHotplugTrigger(monitor.Kick, logger)
				if err := trigger.Start(runCtx); err != nil {
					return err
				}
				defer trigger.Stop()
			}

			logger.Info("console waiting for port",
				logging.String(logging.FieldEventType, "console_started"),
				logging.String(logging.FieldPort, port),
				logging.Int("baud_rate", baud),
				logging.String("encoding", encodingName),
				logging.Bool("reconnect", reconnect),
			)

			select {
			case <-runCtx.Done():
			case <-controller.Done():
			}

			controller.stop()
			monitor.Stop()
			monitor.Wait()
			session.Close()
			session.Wait()
			return nil
		},
	}

	cmd.Flags().IntVarP(&baud, "baud", "b", 0, "Baud rate (default from session.baud_rate)")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Re-open the port when it reappears (default from console.reconnect)")
	cmd.Flags().StringVar(&encodingName, "encoding", "", "Character set of the incoming bytes (default from console.encoding)")
	return cmd
}
