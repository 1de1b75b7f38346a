package observability

// Config captures opt-in observability toggles for the client. Tracing stays
// disabled unless an OTLP endpoint is configured.
type Config struct {
	ServiceName string
	// Endpoint is an OTLP/HTTP traces URL, e.g. http://localhost:4318.
	Endpoint string
	Enabled  bool
}

// TracingEnabled reports whether Setup will install a tracer provider.
func (c Config) TracingEnabled() bool {
	return c.Enabled && c.Endpoint != ""
}
