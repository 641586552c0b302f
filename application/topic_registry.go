package application

import (
	"fmt"
	"sync"
)

var ErrInvalidTopic = fmt.Errorf("topic cannot be empty")

// TopicRegistry maps a topic to exactly one handler. Registering a topic
// again replaces its handler.
type TopicRegistry struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{handlers: make(map[string]MessageHandler)}
}

func (r *TopicRegistry) Register(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("handler for topic %q is nil", topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = handler
	return nil
}

func (r *TopicRegistry) Resolve(topic string) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[topic]
	return handler, ok
}

// Topics returns every registered topic in no particular order.
func (r *TopicRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

func (r *TopicRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
