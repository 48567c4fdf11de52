package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware; the
// simulated arm implements it too.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener opens a port at path with the given options. The real
// implementation is OpenRealPort; tests substitute their own.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
