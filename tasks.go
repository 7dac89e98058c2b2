package serial

import (
	"time"

	"github.com/allbin/go-serialstream/internal/metrics"
)

const (
	rxBackoffMin = 5 * time.Millisecond
	rxBackoffMax = 250 * time.Millisecond

	// writerIdlePoll bounds how long an idle writer waits without a wake-up
	writerIdlePoll = 5 * time.Millisecond
)

// readLoop moves bytes from the device into the incoming buffer until stop
// is requested. Driver errors are logged and retried with backoff.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer s.logger.Debug("serial_rx_end")

	buf := make([]byte, s.config.ReadChunkSize)
	backoff := rxBackoffMin
	for !s.incoming.StopRequested() {
		n, err := s.driver.Read(buf)
		if n > 0 {
			s.deliver(buf[:n])
			backoff = rxBackoffMin
		}
		if err == nil {
			continue
		}
		if s.incoming.StopRequested() {
			return
		}

		s.stats.readErrors.Inc()
		metrics.IncError(metrics.ErrSerialRead)
		s.logger.Warn("serial_read_error", "error", err, "backoff", backoff)
		if !s.sleep(backoff) {
			return
		}
		backoff *= 2
		if backoff > rxBackoffMax {
			backoff = rxBackoffMax
		}
	}
}

// deliver pushes p into the incoming buffer, dropping what does not fit
func (s *Session) deliver(p []byte) {
	pushed, dropped := 0, 0
	for _, b := range p {
		if err := s.incoming.Push(b); err != nil {
			dropped++
			continue
		}
		pushed++
	}

	if pushed > 0 {
		s.stats.rxBytes.Add(uint64(pushed))
		metrics.AddRxBytes(pushed)
	}
	if dropped > 0 {
		s.stats.rxDropped.Add(uint64(dropped))
		metrics.AddRxDropped(dropped)
		s.logger.Debug("serial_rx_overflow", "dropped", dropped)
	}
	metrics.SetBuffered(s.name, metrics.DirIncoming, s.incoming.Len())
}

// writeLoop moves bytes from the outgoing buffer to the device until stop is
// requested. An empty buffer parks the goroutine until a write wakes it.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer s.logger.Debug("serial_tx_end")

	idle := time.NewTicker(writerIdlePoll)
	defer idle.Stop()

	buf := make([]byte, s.config.WriteChunkSize)
	for !s.outgoing.StopRequested() {
		n := s.outgoing.PopInto(buf)
		if n == 0 {
			select {
			case <-s.wake:
			case <-s.done:
			case <-idle.C:
			}
			continue
		}
		metrics.SetBuffered(s.name, metrics.DirOutgoing, s.outgoing.Len())
		s.transmit(buf[:n])
	}
}

// transmit hands p to the device, retrying short writes. On error the rest
// of p is dropped.
func (s *Session) transmit(p []byte) {
	for len(p) > 0 {
		n, err := s.driver.Write(p)
		if n > 0 {
			s.stats.txBytes.Add(uint64(n))
			metrics.AddTxBytes(n)
			p = p[n:]
		}
		if err != nil {
			if s.outgoing.StopRequested() {
				return
			}
			s.stats.writeErrors.Inc()
			metrics.IncError(metrics.ErrSerialWrite)
			s.logger.Warn("serial_write_error", "error", err, "dropped", len(p))
			return
		}
		if n == 0 && !s.sleep(writerIdlePoll) {
			return
		}
	}
}
