// Command serialwatch lists serial ports, follows them being plugged and
// unplugged, and attaches a console to one of them.
//
//	serialwatch ports
//	serialwatch watch
//	serialwatch console /dev/ttyUSB0 --baud 9600
package main
