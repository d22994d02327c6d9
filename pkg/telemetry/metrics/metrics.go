package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const prefix = "paysync"

// Provider is an installed meter provider plus the handler serving it.
type Provider struct {
	Provider *sdkmetric.MeterProvider
	Handler  http.Handler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.Provider.Shutdown(ctx)
}

// Setup installs a prometheus backed meter provider as the global provider.
// Metrics recorded before Setup are dropped by the otel no-op meter.
func Setup() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("error setting up prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return &Provider{
		Provider: mp,
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}
