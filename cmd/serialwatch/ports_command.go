package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// describePorts supplies USB identity for the ports table.
var describePorts = serial.DescribePorts

func newPortsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports present now",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			enum, _, err := ctx.monitorOptions(logger)
			if err != nil {
				return err
			}
			ports, err := listPorts(cmd.Context(), enum, logger)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, ports)
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			fmt.Fprintln(out, renderPortsTable(ports))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print ports as JSON")
	return cmd
}

// listPorts returns the ports enum sees, in snapshot order, with whatever
// details the system listing has for each of them.
func listPorts(ctx context.Context, enum serial.Enumerator, logger *slog.Logger) ([]serial.PortDetails, error) {
	names, err := enum.Ports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	snapshot := serial.NewSnapshot(names...)

	known := make(map[string]serial.PortDetails)
	details, err := describePorts()
	if err != nil {
		logging.WarnWithContext(logger, "port details unavailable", "port_details_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "USB identity comes from the system port listing"),
			logging.String(logging.FieldImpact, "ports are listed by name only"),
		)
	}
	for _, d := range details {
		known[d.Name] = d
	}

	out := make([]serial.PortDetails, 0, len(snapshot))
	for _, name := range snapshot {
		d, ok := known[name]
		if !ok {
			d = serial.PortDetails{Name: name}
		}
		out = append(out, d)
	}
	return out, nil
}

func renderPortsTable(ports []serial.PortDetails) string {
	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		rows = append(rows, []string{p.Name, yesNo(p.IsUSB), p.VID, p.PID, p.SerialNumber, p.Product})
	}
	return renderTable([]string{"Port", "USB", "VID", "PID", "Serial", "Product"}, rows)
}
