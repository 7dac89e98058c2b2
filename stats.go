package serial

import "go.uber.org/atomic"

// Stats is a point-in-time copy of a session's counters
type Stats struct {
	RxBytes       uint64 // bytes pushed into the incoming buffer
	TxBytes       uint64 // bytes accepted by the device
	RxDropped     uint64 // bytes dropped because the incoming buffer was full
	ReadErrors    uint64
	WriteErrors   uint64
	RetryTimeouts uint64 // WriteByte calls that gave up with ErrWriteRetryTimeout
}

type sessionStats struct {
	rxBytes       atomic.Uint64
	txBytes       atomic.Uint64
	rxDropped     atomic.Uint64
	readErrors    atomic.Uint64
	writeErrors   atomic.Uint64
	retryTimeouts atomic.Uint64
}

func (s *sessionStats) snapshot() Stats {
	return Stats{
		RxBytes:       s.rxBytes.Load(),
		TxBytes:       s.txBytes.Load(),
		RxDropped:     s.rxDropped.Load(),
		ReadErrors:    s.readErrors.Load(),
		WriteErrors:   s.writeErrors.Load(),
		RetryTimeouts: s.retryTimeouts.Load(),
	}
}
