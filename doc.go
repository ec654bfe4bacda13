// Package serial discovers serial ports and streams the bytes they receive,
// surviving devices that appear and disappear while the program runs.
//
// Two independent services make up the package:
//
//   - Monitor polls an Enumerator on a fixed interval and reports the set of
//     present ports whenever it changes. Polling keeps discovery portable; on
//     Linux a HotplugTrigger can additionally nudge the monitor when udev
//     reports a tty being added or removed.
//   - Session owns at most one open Port, runs a bounded-timeout read loop on
//     its own goroutine and can be closed from any goroutine while a read is
//     in flight.
//
// Both report through a Handler. Events are queued without blocking the
// producer and delivered in order by a single goroutine per component, so a
// handler may call back into Open, Close, Start or Stop.
//
// Two transports are provided: the portable go.bug.st/serial driver
// (SystemOpener) and a Linux raw termios driver (RawOpener) built on poll(2)
// with a self-pipe so Close unblocks a pending read immediately.
//
// Example usage:
//
//	session := serial.NewSession(func(ev serial.Event) {
//	    switch ev.Type {
//	    case serial.EventDataReceived:
//	        os.Stdout.Write(ev.Data)
//	    case serial.EventPortError:
//	        log.Println("port error:", ev.Err)
//	    }
//	})
//
//	monitor := serial.NewMonitor(serial.SystemEnumerator{}, func(ev serial.Event) {
//	    if port, ok := session.ActivePort(); ok && !ev.Ports.Contains(port) {
//	        session.Close()
//	    }
//	})
//	_ = monitor.Start(ctx)
//	defer monitor.Stop()
//
//	session.Open("/dev/ttyUSB0", 115200)
//	defer session.Close()
package serial
