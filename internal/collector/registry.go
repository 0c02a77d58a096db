package collector

// Registry holds the enabled collectors for a process. Built once at
// startup from config and passed into the pipeline explicitly; read-only
// for the lifetime of a run.
type Registry struct {
	collectors []Collector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a collector. Registration order is the order results
// are reconciled in.
func (r *Registry) Register(c Collector) {
	r.collectors = append(r.collectors, c)
}

// Enabled returns the registered collectors in registration order.
func (r *Registry) Enabled() []Collector {
	return r.collectors
}

// Len returns the number of registered collectors.
func (r *Registry) Len() int {
	return len(r.collectors)
}

// Versions returns the name -> semantic version map recorded on each
// query run for auditability.
func (r *Registry) Versions() map[string]string {
	versions := make(map[string]string, len(r.collectors))
	for _, c := range r.collectors {
		versions[c.Name()] = c.Version()
	}
	return versions
}
