// Package sequencer drives a participant through the phases of a session:
// participant entry, consent, instructions, trials, demographics and the
// final debrief. It owns the active screen, flushes screen data to the
// sink on every transition and pushes dial settings through the bridge.
package sequencer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/screen"
	"github.com/dialstudy/dialstudy/pkg/sink"
	"github.com/dialstudy/dialstudy/pkg/video"
)

// Phase is a named stage of a session.
type Phase int

const (
	PhaseParticipantEntry Phase = iota
	PhaseConsent
	PhaseInstructions
	PhaseTrials
	PhaseDemographics
	PhaseFinal

	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseParticipantEntry:
		return "participant_entry"
	case PhaseConsent:
		return "consent"
	case PhaseInstructions:
		return "instructions"
	case PhaseTrials:
		return "trials"
	case PhaseDemographics:
		return "demographics"
	case PhaseFinal:
		return "final"
	default:
		return "unknown"
	}
}

// DialApplier pushes a dial configuration to the device.
type DialApplier interface {
	Apply(cfg dial.Config) error
}

// ParticipantRecord identifies the participant of the running session.
type ParticipantRecord struct {
	ID             uint32
	Counterbalance bool
	Condition      string
	SessionID      string
	StartedAt      time.Time
	Trials         []Trial
}

// Options configures a Sequencer.
type Options struct {
	Document *experiment.Document
	Sink     sink.Persister
	Bridge   DialApplier
	Opener   video.Opener
	Clock    clock.Clock
	Observer Observer
	Logger   *zap.Logger

	// Seed of the trial draw; 0 seeds from the clock.
	Seed int64
	// ExitAfterFinal ends the run after the first completed session
	// instead of returning to participant entry.
	ExitAfterFinal bool
	// NewSessionID defaults to uuid.NewString.
	NewSessionID func() string
}

// Sequencer is the session state machine. Tick, HandleUI and the
// accessors must be called from one goroutine; SetDocument may be called
// from any.
type Sequencer struct {
	opts     Options
	logger   *zap.Logger
	observer Observer
	clock    clock.Clock
	rng      *rand.Rand

	docMu      sync.Mutex
	doc        *experiment.Document
	pendingDoc *experiment.Document

	phases      [numPhases][]screen.Screen
	phase       Phase
	index       int
	participant *ParticipantRecord
	notice      string
	started     bool
	done        bool
}

// New creates a sequencer positioned on participant entry. Call Start to
// activate the first screen.
func New(opts Options) *Sequencer {
	if opts.Document == nil {
		panic("sequencer: Options.Document is required")
	}
	if opts.Sink == nil {
		panic("sequencer: Options.Sink is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	seed := opts.Seed
	if seed == 0 {
		seed = opts.Clock.Now().UnixNano()
	}

	observer := opts.Observer
	if observer == nil {
		observer = ObserverFunc(func(context.Context, Event) {})
	}

	s := &Sequencer{
		opts:     opts,
		logger:   opts.Logger.Named("sequencer"),
		observer: observer,
		clock:    opts.Clock,
		rng:      rand.New(rand.NewSource(seed)),
		doc:      opts.Document,
	}
	s.phases[PhaseParticipantEntry] = []screen.Screen{screen.NewParticipantEntry()}
	return s
}

// Start activates the participant entry screen.
func (s *Sequencer) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true
	s.logger.Info("session sequencer started", zap.Int64("seed", s.opts.Seed))
	return s.activate(ctx, -1)
}

// Tick delivers one hardware event, or nil, to the active screen. While a
// notice is pending, input is withheld from the screen.
func (s *Sequencer) Tick(ctx context.Context, ev *dial.Event) error {
	if s.done || !s.started {
		return nil
	}
	if s.notice != "" {
		return nil
	}
	return s.apply(ctx, s.Active().Update(ev))
}

// HandleUI delivers a front-end event to the active screen.
func (s *Sequencer) HandleUI(ctx context.Context, ev screen.UIEvent) error {
	if s.done || !s.started {
		return nil
	}
	if s.notice != "" {
		return nil
	}
	return s.apply(ctx, s.Active().HandleInput(ev))
}

// View renders the active screen.
func (s *Sequencer) View() screen.View {
	return s.Active().Render()
}

// Active returns the active screen.
func (s *Sequencer) Active() screen.Screen {
	return s.phases[s.phase][s.index]
}

// Phase returns the current phase and the index within it.
func (s *Sequencer) Phase() (Phase, int) {
	return s.phase, s.index
}

// PhaseLen returns the number of screens in a phase.
func (s *Sequencer) PhaseLen(p Phase) int {
	return len(s.phases[p])
}

// Participant returns the current participant, if one was accepted.
func (s *Sequencer) Participant() (ParticipantRecord, bool) {
	if s.participant == nil {
		return ParticipantRecord{}, false
	}
	return *s.participant, true
}

// Done reports whether the run has ended.
func (s *Sequencer) Done() bool {
	return s.done
}

// Notice returns the pending operator notice.
func (s *Sequencer) Notice() (string, bool) {
	return s.notice, s.notice != ""
}

// DismissNotice clears the operator notice and resumes input.
func (s *Sequencer) DismissNotice() {
	s.notice = ""
}

// SetDocument replaces the experiment document. It takes effect at the
// next participant id validation; a running session is unaffected.
func (s *Sequencer) SetDocument(doc *experiment.Document) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.pendingDoc = doc
}

// Document returns the document new sessions are validated against.
func (s *Sequencer) Document() *experiment.Document {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.pendingDoc != nil {
		return s.pendingDoc
	}
	return s.doc
}

// Scaling returns the UI scale factor of the document in use.
func (s *Sequencer) Scaling() float64 {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return s.doc.Scaling()
}

func (s *Sequencer) currentDocument() *experiment.Document {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.pendingDoc != nil {
		s.doc = s.pendingDoc
		s.pendingDoc = nil
		if ds, ok := s.opts.Opener.(video.DurationSetter); ok {
			ds.SetDurations(s.doc.Durations())
		}
		s.logger.Info("experiment document reloaded", zap.String("path", s.doc.Path()))
	}
	return s.doc
}

func (s *Sequencer) apply(ctx context.Context, d screen.Directive) error {
	switch d.Action {
	case screen.ActionStay:
		return nil
	case screen.ActionRetreat:
		s.emit(ctx, Event{Type: EventRetreatIgnored, Screen: s.Active().Name()})
		return nil
	case screen.ActionAdvance:
		if s.phase == PhaseParticipantEntry {
			return s.submitParticipant(ctx, d.Payload)
		}
		return s.advance(ctx, nil)
	default:
		panic("sequencer: unknown directive")
	}
}

// submitParticipant validates the entered id and builds the session, or
// raises a notice and re-initializes the entry screen.
func (s *Sequencer) submitParticipant(ctx context.Context, input string) error {
	doc := s.currentDocument()
	id, p, err := doc.Lookup(input)
	if err != nil {
		s.notice = fmt.Sprintf("%s: %q", apperrors.UserMessage(err), input)
		s.emit(ctx, Event{Type: EventParticipantRejected, Input: input, Err: err})

		entry := s.Active()
		entry.Hide()
		entry.Init()
		if err := entry.Show(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeVideoFailed, "cannot show screen").
				WithContext("screen", entry.Name())
		}
		return nil
	}

	trials := PlanTrials(doc.Videos.IDs, doc.Videos.Num, s.rng)
	s.participant = &ParticipantRecord{
		ID:             id,
		Counterbalance: p.Counterbalance,
		Condition:      p.Condition,
		SessionID:      s.opts.NewSessionID(),
		StartedAt:      s.clock.Now(),
		Trials:         trials,
	}
	s.buildSession(doc, p, trials)
	s.emit(ctx, Event{Type: EventParticipantAccepted})

	return s.advance(ctx, PlanDataset(trials, p))
}

func (s *Sequencer) buildSession(doc *experiment.Document, p experiment.Participant, trials []Trial) {
	s.phases[PhaseConsent] = consentScreens(doc)
	s.phases[PhaseInstructions] = instructionScreens(doc, p.Condition)

	var screens []screen.Screen
	for _, t := range trials {
		screens = append(screens, trialScreens(t, p, len(trials), s.opts.Opener, s.clock)...)
	}
	s.phases[PhaseTrials] = screens
	s.phases[PhaseDemographics] = demographicScreens()
	s.phases[PhaseFinal] = finalScreens()
}

// advance supersedes the active screen: hide it, persist its data (and
// extra, when given), then activate the next screen. Data is read exactly
// once and written before the next screen's Init.
func (s *Sequencer) advance(ctx context.Context, extra *dataset.Dataset) error {
	out := s.Active()
	out.Hide()
	s.emit(ctx, Event{Type: EventScreenDeactivated, Screen: out.Name()})

	if err := s.persist(ctx, out.Data()); err != nil {
		return err
	}
	if err := s.persist(ctx, extra); err != nil {
		return err
	}

	prev := s.phase
	s.index++
	for s.phase < numPhases && s.index >= len(s.phases[s.phase]) {
		s.phase++
		s.index = 0
	}

	if s.phase == numPhases {
		return s.completeSession(ctx)
	}
	return s.activate(ctx, prev)
}

func (s *Sequencer) persist(ctx context.Context, ds *dataset.Dataset) error {
	if ds == nil {
		return nil
	}
	if s.participant == nil {
		panic("sequencer: dataset " + ds.Name + " produced without a participant")
	}
	if err := s.opts.Sink.Persist(ctx, s.participant.ID, ds); err != nil {
		s.logger.Error("dataset persist failed",
			zap.Uint32("participant", s.participant.ID),
			zap.String("dataset", ds.Name),
			zap.Error(err))
		return err
	}
	s.emit(ctx, Event{Type: EventDatasetPersisted, Dataset: ds.Name, Rows: len(ds.Rows)})
	return nil
}

func (s *Sequencer) completeSession(ctx context.Context) error {
	s.phase = PhaseFinal
	s.index = len(s.phases[PhaseFinal]) - 1
	s.emit(ctx, Event{Type: EventSessionComplete})

	if s.opts.ExitAfterFinal {
		s.done = true
		return nil
	}

	for p := PhaseConsent; p < numPhases; p++ {
		s.phases[p] = nil
	}
	s.participant = nil
	prev := s.phase
	s.phase = PhaseParticipantEntry
	s.index = 0
	return s.activate(ctx, prev)
}

// activate initializes and shows the screen at the current position and
// applies its dial configuration. prev is the phase before the move, -1
// at start.
func (s *Sequencer) activate(ctx context.Context, prev Phase) error {
	in := s.Active()
	in.Init()
	if err := in.Show(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeVideoFailed, "cannot show screen").
			WithContext("screen", in.Name())
	}

	if cfg, ok := in.DialConfig(); ok && s.opts.Bridge != nil {
		if err := s.opts.Bridge.Apply(cfg); err != nil {
			s.logger.Warn("dial configuration failed",
				zap.String("screen", in.Name()),
				zap.Error(apperrors.DeviceFailed("dial", err)))
		}
	}

	if prev != s.phase {
		s.emit(ctx, Event{Type: EventPhaseChanged})
	}
	s.emit(ctx, Event{Type: EventScreenActivated, Screen: in.Name()})
	return nil
}

func (s *Sequencer) emit(ctx context.Context, ev Event) {
	ev.Time = s.clock.Now()
	ev.Phase = s.phase
	ev.Index = s.index
	if s.participant != nil {
		ev.SessionID = s.participant.SessionID
		ev.Participant = s.participant.ID
		ev.Condition = s.participant.Condition
		ev.Counterbalanced = s.participant.Counterbalance
	}
	s.observer.OnEvent(ctx, ev)
}
