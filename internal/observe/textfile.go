package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Textfile collects metrics for one CLI run and writes them in the Prometheus
// text format for the node_exporter textfile collector.
type Textfile struct {
	path     string
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
}

// InitTextfile installs an SDK meter provider backed by a private Prometheus
// registry as the global provider. Call Flush at the end of the run.
func InitTextfile(path string) (*Textfile, error) {
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return &Textfile{path: path, registry: reg, provider: mp}, nil
}

// Gatherer exposes the registry, mainly for tests.
func (t *Textfile) Gatherer() prometheus.Gatherer {
	return t.registry
}

// Flush writes the current metrics to the textfile and shuts the provider down.
func (t *Textfile) Flush(ctx context.Context) error {
	var errs []error
	if err := prometheus.WriteToTextfile(t.path, t.registry); err != nil {
		errs = append(errs, fmt.Errorf("observe: write %s: %w", t.path, err))
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
