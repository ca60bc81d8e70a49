package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
    RelayBytes = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "debrix",
            Name:      "relay_bytes_total",
            Help:      "Bytes forwarded downstream by the stream relay.",
        },
    )

    RelayRetries = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "debrix",
            Name:      "relay_retries_total",
            Help:      "Resume attempts made after a transient stream failure.",
        },
    )

    ActiveRelays = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "debrix",
            Name:      "active_relays",
            Help:      "Number of relay streams currently being served.",
        },
    )

    TokenRefreshes = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "debrix",
            Name:      "token_refreshes_total",
            Help:      "Credential refresh calls per provider and outcome.",
        },
        []string{"provider", "outcome"},
    )

    ProviderLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "debrix",
            Name:      "provider_call_latency_seconds",
            Help:      "Latency of upstream provider API calls.",
        },
        []string{"provider", "op"},
    )

    ProviderErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "debrix",
            Name:      "provider_call_errors_total",
            Help:      "Errors from upstream provider API calls.",
        },
        []string{"provider", "op"},
    )

    TransferEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "debrix",
            Name:      "transfer_events_total",
            Help:      "Count of transfer events processed by the tracker.",
        },
        []string{"type"},
    )
)

// Register registers the Debrix metrics into the default registry.
func Register() {
    prometheus.MustRegister(RelayBytes, RelayRetries, ActiveRelays,
        TokenRefreshes, ProviderLatency, ProviderErrors, TransferEvents)
}
