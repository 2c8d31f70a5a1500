package events

type ProducerOptions func(e *EventProducer)

// WithOutputTopic overrides the topic events are written to.
func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithSource overrides the CloudEvents source attribute.
func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}
