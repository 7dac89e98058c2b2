// Package serial provides a buffered, Arduino-style byte stream over a serial
// device.
//
// A Session owns two ring buffers and two goroutines. The reader goroutine
// moves bytes from the device into the incoming buffer; the writer goroutine
// moves bytes from the outgoing buffer to the device. Calls on the Session
// only touch the buffers, so reads never block and writes block only while
// the outgoing buffer is full.
//
// # Basic Usage
//
// Open a port with the default configuration (9600 8N1, 1024 byte buffers):
//
//	s, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	s.Println("PING")
//	s.Flush(0)
//
//	for s.Available() == 0 {
//	    time.Sleep(10 * time.Millisecond)
//	}
//	line, err := s.ReadStringUntil('\n')
//
// # Configuration Options
//
//	s, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(115200),
//	    serial.WithParity(serial.ParityEven),
//	    serial.WithBufferSize(4096),
//	    serial.WithTimeouts(serial.Timeouts{
//	        ReadInterval:      20 * time.Millisecond,
//	        ReadTotalConstant: 20 * time.Millisecond,
//	    }),
//	)
//
// The native backend talks termios directly and is Linux only. WithBackend
// (BackendPortable) selects go.bug.st/serial, which also runs on macOS and
// Windows and supports 1.5 stop bits.
//
// # Buffer Behaviour
//
// When the incoming buffer is full the reader drops new bytes and counts
// them in Stats().RxDropped. When the outgoing buffer is full WriteByte polls
// every RetryInterval (5ms) up to RetryAttempts (11) times and then returns
// ErrWriteRetryTimeout. Write stops at the first such byte and returns how
// many bytes it queued.
//
// ReadBytes and ReadBytesUntil treat a zero length as "whatever is available
// now" and never return more than the buffer capacity in one call.
// ReadBytesUntil and ReadStringUntil consume the terminator and do not
// return it.
//
// # Port Discovery
//
//	ports, err := serial.ListPorts()
//	for _, portPath := range ports {
//	    info, _ := serial.GetPortInfo(portPath)
//	    fmt.Printf("%s: %s (VID=%s PID=%s)\n",
//	        info.Path, info.Description, info.VendorID, info.ProductID)
//	}
//
// # Error Handling
//
// Errors are sentinels to be checked with errors.Is. Device and
// configuration failures wrap the OS cause:
//
//	if errors.Is(err, serial.ErrDeviceNotFound) {
//	    // ...
//	}
package serial
