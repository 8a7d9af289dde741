package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TransportLabel = "transport"
	CommandLabel   = "command"
	CodeLabel      = "code"
	IRQLabel       = "irq"
)

var (
	FramesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "frames_received_total",
			Help:      "The total number of frames received per transport",
		},
		[]string{TransportLabel},
	)

	FramesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "frames_sent_total",
			Help:      "The total number of frames sent per transport",
		},
		[]string{TransportLabel},
	)

	DispatchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "dispatch_total",
			Help:      "The total number of dispatched commands",
		},
		[]string{CommandLabel},
	)

	ErrorResponseCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "error_response_total",
			Help:      "The total number of Err responses per error code",
		},
		[]string{CodeLabel},
	)

	MalformedFrameCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "malformed_frame_total",
			Help:      "The total number of dropped malformed frames",
		},
	)

	RadioIRQCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "radio_irq_total",
			Help:      "The total number of radio interrupts handled per kind",
		},
		[]string{IRQLabel},
	)

	RadioDroppedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "radio_dropped_total",
			Help:      "The total number of received packets dropped on a full queue",
		},
	)

	RadioFaultCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loranode",
			Name:      "radio_fault_total",
			Help:      "The total number of radio hardware faults",
		},
	)

	RadioRSSIGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loranode",
			Name:      "radio_last_rssi_dbm",
			Help:      "RSSI of the last received packet",
		},
	)

	RadioSNRGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loranode",
			Name:      "radio_last_snr_db",
			Help:      "SNR of the last received packet",
		},
	)
)
