// Package event provides a synchronous topic-based emitter.
//
// Unlike an asynchronous bus, Emit calls every subscriber on the calling goroutine, in
// subscription order, before returning. Collectors rely on this so that the metrics of one
// flush are delivered in a deterministic order within the flush itself.
package event

import (
	"fmt"
	"sync"

	"github.com/linchenxuan/incidental/log"
)

// TopicMetric is the topic collectors emit finalized metrics on.
const TopicMetric = "metric"

// Subscriber receives the payload of an emitted event.
type Subscriber func(payload any)

// Topic is the subscriber list of a single topic.
type Topic struct {
	subscribers []Subscriber
}

// Emitter holds multiple topics. The zero value is ready to use.
type Emitter struct {
	lock   sync.RWMutex
	topics map[string]*Topic
}

// NewEmitter creates an emitter with the given topics pre-created.
func NewEmitter(topics ...string) *Emitter {
	e := &Emitter{topics: make(map[string]*Topic, len(topics))}
	for _, name := range topics {
		e.topics[name] = &Topic{}
	}
	return e
}

// NewTopic creates a topic. Creating an existing topic is an error.
func (e *Emitter) NewTopic(topicName string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.topics == nil {
		e.topics = make(map[string]*Topic)
	}
	if _, ok := e.topics[topicName]; ok {
		return fmt.Errorf("topic %s already created", topicName)
	}
	e.topics[topicName] = &Topic{}
	return nil
}

// Subscribe registers fn on a topic.
func (e *Emitter) Subscribe(topicName string, fn Subscriber) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	topic, ok := e.topics[topicName]
	if !ok {
		return fmt.Errorf("topic %s not created", topicName)
	}
	topic.subscribers = append(topic.subscribers, fn)
	log.Trace().Str("topic", topicName).Int("num", len(topic.subscribers)).Msg("add subscriber")
	return nil
}

// Listeners returns the number of subscribers of a topic.
func (e *Emitter) Listeners(topicName string) int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	if topic, ok := e.topics[topicName]; ok {
		return len(topic.subscribers)
	}
	return 0
}

// Emit delivers payload to every subscriber of the topic, in order, on the calling goroutine.
// A panicking subscriber is logged and does not prevent delivery to the rest.
func (e *Emitter) Emit(topicName string, payload any) error {
	e.lock.RLock()
	topic, ok := e.topics[topicName]
	var subs []Subscriber
	if ok {
		subs = append(subs, topic.subscribers...)
	}
	e.lock.RUnlock()

	if !ok {
		return fmt.Errorf("topic %s not created", topicName)
	}
	for _, sub := range subs {
		deliver(topicName, sub, payload)
	}
	return nil
}

func deliver(topicName string, sub Subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("topic", topicName).Any("panic", fmt.Sprint(r)).Msg("subscriber panicked")
		}
	}()
	sub(payload)
}
