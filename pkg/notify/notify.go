package notify

import (
	"sync"

	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

const (
	DefaultInterface = "com.mcservice.manager"

	SignalPropertiesChanged = "PropertiesChanged"
	SignalServerChanged     = "server_changed"

	FieldRunning = "running"
)

// Event is one change notification as seen by external listeners.
type Event struct {
	Interface   string                 `json:"interface"`
	Signal      string                 `json:"signal"`
	Changed     map[string]interface{} `json:"changed"`
	Invalidated []string               `json:"invalidated"`
}

type Sink interface {
	Emit(event Event) error
}

// Notifier is what components hold to announce state changes.
type Notifier interface {
	Notify(field string, value interface{})
	ServerChanged(running bool)
}

// Publisher fans every notification out to its sinks. A failing sink is
// logged and does not stop delivery to the others.
type Publisher struct {
	iface  string
	logger logging.Logger

	mutex sync.RWMutex
	sinks []Sink
}

func NewPublisher(iface string, logger logging.Logger, sinks ...Sink) *Publisher {
	if iface == "" {
		iface = DefaultInterface
	}
	return &Publisher{
		iface:  iface,
		logger: logger,
		sinks:  sinks,
	}
}

func (p *Publisher) AddSink(sink Sink) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sinks = append(p.sinks, sink)
}

func (p *Publisher) Notify(field string, value interface{}) {
	p.emit(Event{
		Interface:   p.iface,
		Signal:      SignalPropertiesChanged,
		Changed:     map[string]interface{}{field: value},
		Invalidated: []string{},
	})
}

func (p *Publisher) ServerChanged(running bool) {
	p.emit(Event{
		Interface:   p.iface,
		Signal:      SignalServerChanged,
		Changed:     map[string]interface{}{FieldRunning: running},
		Invalidated: []string{},
	})
}

func (p *Publisher) emit(event Event) {
	p.mutex.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mutex.RUnlock()

	for _, sink := range sinks {
		if err := sink.Emit(event); err != nil {
			p.logger.Warnf("Failed to deliver %s notification: %v", event.Signal, err)
		}
	}
}

// LogSink writes every event to the service log.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(event Event) error {
	s.logger.Infof("Signal %s, interface: %s, changed: %v", event.Signal, event.Interface, event.Changed)
	return nil
}
