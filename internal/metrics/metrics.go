package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkorhonen/h1bridge/internal/logging"
)

var (
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h1bridge_poll_cycles_total",
		Help: "Completed poll cycles by result.",
	}, []string{"result"})

	RegisterWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h1bridge_register_writes_total",
		Help: "Register writes issued by command handling, by result.",
	}, []string{"result"})

	PublishedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "h1bridge_mqtt_published_total",
		Help: "Telemetry messages published to MQTT.",
	})

	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "h1bridge_mqtt_publish_errors_total",
		Help: "Failed MQTT publishes.",
	})

	CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "h1bridge_commands_rejected_total",
		Help: "Inbound commands dropped for unknown key, label or bad value.",
	})

	LinkConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "h1bridge_device_link_connected",
		Help: "1 while the Modbus session is up.",
	})
)

// Serve exposes /metrics on addr; it blocks and is meant to run in its own
// goroutine. A serve failure is logged, never fatal.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logging.Info("Metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("Metrics listener failed", "addr", addr, "error", err)
	}
}
