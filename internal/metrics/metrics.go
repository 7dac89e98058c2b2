package metrics

import (
	"net/http"
	"sync"

	"github.com/allbin/go-serialstream/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
)

// Prometheus collectors
var (
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes read from serial devices into incoming buffers.",
	})
	SerialTxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_bytes_total",
		Help: "Total bytes accepted by serial devices from outgoing buffers.",
	})
	SerialRxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_dropped_bytes_total",
		Help: "Total received bytes dropped because the incoming buffer was full.",
	})
	SerialRetryTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_write_retry_timeouts_total",
		Help: "Total writes abandoned because the outgoing buffer stayed full.",
	})
	Buffered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "serial_buffered_bytes",
		Help: "Bytes currently held in a session ring buffer.",
	}, []string{"device", "direction"})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serial_active_sessions",
		Help: "Number of open serial sessions.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialRead  = "serial_read"
	ErrSerialWrite = "serial_write"
	ErrSerialClose = "serial_close"
)

// Buffer directions for the Buffered gauge
const (
	DirIncoming = "incoming"
	DirOutgoing = "outgoing"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// SetReadinessFunc installs the probe consulted by /ready. nil means ready.
func SetReadinessFunc(fn func() bool) {
	readinessMu.Lock()
	readinessFn = fn
	readinessMu.Unlock()
}

// IsReady reports the current readiness.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Local mirrored counters so the CLI can log totals without scraping.
var (
	localRxBytes       atomic.Uint64
	localTxBytes       atomic.Uint64
	localRxDropped     atomic.Uint64
	localRetryTimeouts atomic.Uint64
	localErrors        atomic.Uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	RxBytes       uint64
	TxBytes       uint64
	RxDropped     uint64
	RetryTimeouts uint64
	Errors        uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		RxBytes:       localRxBytes.Load(),
		TxBytes:       localTxBytes.Load(),
		RxDropped:     localRxDropped.Load(),
		RetryTimeouts: localRetryTimeouts.Load(),
		Errors:        localErrors.Load(),
	}
}

func AddRxBytes(n int) {
	SerialRxBytes.Add(float64(n))
	localRxBytes.Add(uint64(n))
}

func AddTxBytes(n int) {
	SerialTxBytes.Add(float64(n))
	localTxBytes.Add(uint64(n))
}

func AddRxDropped(n int) {
	SerialRxDropped.Add(float64(n))
	localRxDropped.Add(uint64(n))
}

func IncRetryTimeout() {
	SerialRetryTimeouts.Inc()
	localRetryTimeouts.Inc()
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	localErrors.Inc()
}

// SetBuffered records the occupancy of one of a device's buffers.
func SetBuffered(device, direction string, n int) {
	Buffered.WithLabelValues(device, direction).Set(float64(n))
}

// open sessions per device label; sessions may share a label
var (
	devicesMu sync.Mutex
	devices   = map[string]int{}
)

// SessionOpened bumps the active session gauge and the device's session count.
func SessionOpened(device string) {
	devicesMu.Lock()
	devices[device]++
	devicesMu.Unlock()
	ActiveSessions.Inc()
}

// SessionClosed drops the active session gauge. The device's buffer series
// are removed once its last session closes.
func SessionClosed(device string) {
	ActiveSessions.Dec()

	devicesMu.Lock()
	defer devicesMu.Unlock()
	if devices[device]--; devices[device] > 0 {
		return
	}
	delete(devices, device)
	Buffered.DeleteLabelValues(device, DirIncoming)
	Buffered.DeleteLabelValues(device, DirOutgoing)
}

// SetBuildInfo publishes version metadata.
func SetBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}
