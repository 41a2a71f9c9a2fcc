// Package telemetry provides logging, tracing and metrics for mio.
//
// Structured logging uses zerolog. Each phase group of the engine opens an
// OpenTelemetry span, and counters for phase groups, discovered IPs, marketplace
// installs and scheduler jobs are kept in a private Prometheus registry. At the end
// of a run the registry is written to .mio/metrics.prom in the text exposition
// format, ready for a node-exporter textfile collector.
//
// Initialize telemetry once per process:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Components derive loggers from the one stored in the context:
//
//	log := telemetry.FromContext(ctx).NewComponentLogger("ip").WithIP("acme/uart")
//	log.Info("installing")
//
// Metrics and Tracer methods are safe to call on nil receivers, which lets tests
// build engines without any telemetry.
package telemetry
