package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

// SessionObserver records each participant session as a trace: one root
// span per session with a child span per screen. Datasets, phase changes
// and ignored retreats become span events. It must be driven from the
// sequencer's goroutine.
type SessionObserver struct {
	tracer trace.Tracer

	sessionID  string
	sessionCtx context.Context
	session    trace.Span
	screen     trace.Span
}

// NewSessionObserver creates an observer recording spans on tracer.
func NewSessionObserver(tracer trace.Tracer) *SessionObserver {
	return &SessionObserver{tracer: tracer}
}

// OnEvent implements sequencer.Observer.
func (o *SessionObserver) OnEvent(ctx context.Context, ev sequencer.Event) {
	at := trace.WithTimestamp(ev.Time)

	switch ev.Type {
	case sequencer.EventParticipantAccepted:
		o.abort(ev, "superseded by a new session")
		o.sessionID = ev.SessionID
		o.sessionCtx, o.session = o.tracer.Start(ctx, "session", at,
			trace.WithNewRoot(),
			trace.WithAttributes(
				attribute.String("session.id", ev.SessionID),
				attribute.Int64("participant.id", int64(ev.Participant)),
				attribute.String("participant.condition", ev.Condition),
				attribute.Bool("participant.counterbalance", ev.Counterbalanced),
			))

	case sequencer.EventParticipantRejected:
		_, span := o.tracer.Start(ctx, "participant_rejected", at,
			trace.WithAttributes(attribute.String("participant.input", ev.Input)))
		if ev.Err != nil {
			span.RecordError(ev.Err, at)
		}
		span.SetStatus(codes.Error, "unknown participant")
		span.End(at)

	case sequencer.EventScreenActivated:
		if !o.active(ev) {
			return
		}
		o.endScreen(ev)
		_, o.screen = o.tracer.Start(o.sessionCtx, "screen "+ev.Screen, at,
			trace.WithAttributes(
				attribute.String("screen.name", ev.Screen),
				attribute.String("screen.phase", ev.Phase.String()),
				attribute.Int("screen.index", ev.Index),
			))

	case sequencer.EventScreenDeactivated:
		if o.active(ev) {
			o.endScreen(ev)
		}

	case sequencer.EventDatasetPersisted:
		if o.active(ev) {
			o.session.AddEvent("dataset_persisted", at, trace.WithAttributes(
				attribute.String("dataset.name", ev.Dataset),
				attribute.Int("dataset.rows", ev.Rows),
			))
		}

	case sequencer.EventPhaseChanged:
		if o.active(ev) {
			o.session.AddEvent("phase_changed", at, trace.WithAttributes(
				attribute.String("phase", ev.Phase.String()),
			))
		}

	case sequencer.EventRetreatIgnored:
		if o.active(ev) && o.screen != nil {
			o.screen.AddEvent("retreat_ignored", at)
		}

	case sequencer.EventSessionComplete:
		if !o.active(ev) {
			return
		}
		o.endScreen(ev)
		o.session.SetStatus(codes.Ok, "")
		o.session.End(at)
		o.reset()
	}
}

// Close ends any open session as interrupted.
func (o *SessionObserver) Close() {
	if o.session != nil {
		if o.screen != nil {
			o.screen.End()
		}
		o.session.RecordError(errors.New("session interrupted"))
		o.session.SetStatus(codes.Error, "session interrupted")
		o.session.End()
		o.reset()
	}
}

func (o *SessionObserver) active(ev sequencer.Event) bool {
	return o.session != nil && ev.SessionID == o.sessionID
}

func (o *SessionObserver) endScreen(ev sequencer.Event) {
	if o.screen != nil {
		o.screen.End(trace.WithTimestamp(ev.Time))
		o.screen = nil
	}
}

func (o *SessionObserver) abort(ev sequencer.Event, reason string) {
	if o.session == nil {
		return
	}
	o.endScreen(ev)
	o.session.SetStatus(codes.Error, reason)
	o.session.End(trace.WithTimestamp(ev.Time))
	o.reset()
}

func (o *SessionObserver) reset() {
	o.sessionID = ""
	o.sessionCtx = nil
	o.session = nil
	o.screen = nil
}

var _ sequencer.Observer = (*SessionObserver)(nil)
