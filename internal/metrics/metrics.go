// Package metrics exposes bridge counters to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dtn_chat"

// drop reasons
const (
	ReasonMalformedBundle = "malformed_bundle"
	ReasonDecode          = "decode"
	ReasonDecrypt         = "decrypt"
)

var (
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from the forwarding agent by kind",
		},
		[]string{"kind"},
	)
	messagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Verified inbound messages delivered to the live channel",
		},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped by reason",
		},
		[]string{"reason"},
	)
	revocationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_failures_total",
			Help:      "Inbound messages whose revocation status did not verify",
		},
	)
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages accepted by the forwarding agent",
		},
	)
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages the forwarding agent did not accept",
		},
	)
	activeBridges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bridges",
			Help:      "Bridges currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		framesReceived,
		messagesDelivered,
		messagesDropped,
		revocationFailures,
		messagesSent,
		sendFailures,
		activeBridges,
	)
}

func FrameReceived(kind string) {
	framesReceived.With(prometheus.Labels{"kind": kind}).Inc()
}

func MessageDelivered() {
	messagesDelivered.Inc()
}

func MessageDropped(reason string) {
	messagesDropped.With(prometheus.Labels{"reason": reason}).Inc()
}

func RevocationFailure() {
	revocationFailures.Inc()
}

func MessageSent() {
	messagesSent.Inc()
}

func SendFailure() {
	sendFailures.Inc()
}

func BridgeStarted() {
	activeBridges.Inc()
}

func BridgeStopped() {
	activeBridges.Dec()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
