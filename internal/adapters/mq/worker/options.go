package worker

// Option applies a configuration option to the VerifyWorker.
type Option func(*VerifyWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *VerifyWorker) {
		if name != "" {
			w.name = name
		}
	}
}
