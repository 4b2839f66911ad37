package config

// OTLPConfig holds OpenTelemetry trace export configuration.
//
// Tracing is disabled until Endpoint is set; see internal/observability for
// the exporter setup.
type OTLPConfig struct {
	// Endpoint is the OTLP HTTP collector endpoint (e.g. "localhost:4318").
	// Empty disables trace export.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the reported service name (default: lorebase).
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}
