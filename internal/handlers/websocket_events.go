package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"golang.org/x/time/rate"
)

const defaultProgressThrottle = 500 * time.Millisecond

// jobStream tracks what was last relayed for one job
type jobStream struct {
	limiter *rate.Limiter
	stage   models.Stage
	last    time.Time
}

// EventSubscriber relays job events from the event bus to WebSocket clients.
// Events are published asynchronously, so one older than the last relayed
// event for the same job is dropped. Progress within a stage is throttled
// per job; stage changes always go through.
type EventSubscriber struct {
	handler      *WebSocketHandler
	eventService interfaces.EventService
	logger       arbor.ILogger
	interval     time.Duration

	mu      sync.Mutex
	streams map[string]*jobStream
	subs    map[interfaces.EventType]string
}

// NewEventSubscriber creates the relay and subscribes it to job events
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	interval := defaultProgressThrottle
	if config != nil {
		interval = common.ParseDuration(config.ProgressThrottle, defaultProgressThrottle)
	}

	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
		interval:     interval,
		streams:      make(map[string]*jobStream),
		subs:         make(map[interfaces.EventType]string),
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the relay for progress and deletion events
func (s *EventSubscriber) SubscribeAll() {
	handlers := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventJobProgress: s.handleJobProgress,
		interfaces.EventJobDeleted:  s.handleJobDeleted,
	}

	for eventType, handler := range handlers {
		id, err := s.eventService.Subscribe(eventType, handler)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket relay")
			continue
		}
		s.mu.Lock()
		s.subs[eventType] = id
		s.mu.Unlock()
	}

	s.logger.Debug().Dur("progress_throttle", s.interval).Msg("EventSubscriber registered for job events")
}

// Close removes the relay's subscriptions
func (s *EventSubscriber) Close() {
	if s.eventService == nil {
		return
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[interfaces.EventType]string)
	s.mu.Unlock()

	for eventType, id := range subs {
		if err := s.eventService.Unsubscribe(eventType, id); err != nil {
			s.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to unsubscribe WebSocket relay")
		}
	}
}

func (s *EventSubscriber) handleJobProgress(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.JobEvent)
	if !ok {
		s.logger.Warn().Msg("Invalid job progress event payload type")
		return nil
	}

	if !s.shouldRelay(payload) {
		return nil
	}

	s.handler.BroadcastJobEvent(string(interfaces.EventJobProgress), payload)
	return nil
}

func (s *EventSubscriber) handleJobDeleted(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.JobEvent)
	if !ok {
		s.logger.Warn().Msg("Invalid job deleted event payload type")
		return nil
	}

	s.mu.Lock()
	delete(s.streams, payload.JobID)
	s.mu.Unlock()

	s.handler.BroadcastJobEvent(string(interfaces.EventJobDeleted), payload)
	return nil
}

// shouldRelay applies the ordering and throttling rules and records the
// event as relayed when it returns true
func (s *EventSubscriber) shouldRelay(event models.JobEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[event.JobID]
	if !ok {
		stream = &jobStream{limiter: rate.NewLimiter(rate.Every(s.interval), 1)}
		s.streams[event.JobID] = stream
	}

	if !stream.last.IsZero() && event.Timestamp.Before(stream.last) {
		return false
	}

	stageChanged := !ok || event.Stage != stream.stage
	if !stageChanged && !stream.limiter.Allow() {
		return false
	}
	if stageChanged {
		// A stage change also starts the pacing window
		stream.limiter.Allow()
	}

	stream.stage = event.Stage
	stream.last = event.Timestamp
	return true
}
