package notifyhook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithTopics restricts notifications to the given topics.
// If not called, all topics are delivered.
func WithTopics(topics ...string) Option {
	return func(e *Extension) {
		e.topics = make(map[string]bool)
		for _, topic := range topics {
			e.topics[topic] = true
		}
	}
}
