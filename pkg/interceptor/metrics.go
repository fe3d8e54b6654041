package interceptor

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Envelope outcome labels.
const (
	OutcomeSigned       = "signed"
	OutcomeUnauthorized = "unauthenticated"
	OutcomeFailed       = "failed"
)

// Metrics counts envelope outcomes and encryption fallbacks.
type Metrics struct {
	Envelopes           *prometheus.CounterVec
	EncryptionFallbacks *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
// Collectors already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authn",
			Name:      "envelopes_total",
			Help:      "Outbound call envelopes by call kind and outcome.",
		}, []string{"kind", "outcome"}),
		EncryptionFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authn",
			Name:      "encryption_fallbacks_total",
			Help:      "Envelope fields sent with the non-confidential fallback encoding.",
		}, []string{"field"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.Envelopes, err = register(reg, m.Envelopes); err != nil {
		return nil, err
	}
	if m.EncryptionFallbacks, err = register(reg, m.EncryptionFallbacks); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) envelope(kind, outcome string) {
	if m == nil || m.Envelopes == nil {
		return
	}
	m.Envelopes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) fallback(field string) {
	if m == nil || m.EncryptionFallbacks == nil {
		return
	}
	m.EncryptionFallbacks.WithLabelValues(field).Inc()
}
