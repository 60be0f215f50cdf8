package screen

import (
	"fmt"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
	"github.com/dialstudy/dialstudy/pkg/sampler"
	"github.com/dialstudy/dialstudy/pkg/video"
)

// playback owns the player of a video screen between Show and Hide.
type playback struct {
	uri    string
	opener video.Opener
	player video.Player
}

func (p *playback) open() error {
	if p.player != nil {
		return nil
	}
	player, err := p.opener.Open(p.uri)
	if err != nil {
		return fmt.Errorf("open video %s: %w", p.uri, err)
	}
	p.player = player
	return nil
}

// close pauses and drops the player. Safe to call repeatedly.
func (p *playback) close() {
	if p.player == nil {
		return
	}
	p.player.SetPaused(true)
	_ = p.player.Close()
	p.player = nil
}

// mustPlayer panics when no video is loaded; querying playback outside
// Show/Hide is a lifecycle bug.
func (p *playback) mustPlayer() video.Player {
	if p.player == nil {
		panic("screen: no video is playing: " + p.uri)
	}
	return p.player
}

func (p *playback) position() time.Duration {
	return p.mustPlayer().Position()
}

func (p *playback) paused() bool {
	return p.player != nil && p.player.Paused()
}

// RatingVideoOptions configures a RatingVideo screen.
type RatingVideoOptions struct {
	Name string // dataset name
	URI  string
	// Mirror swaps the Lie/Truth labels and negates recorded values.
	Mirror bool
	// AllowLockIn lets a press finalize before the video ends.
	AllowLockIn bool
}

// Scale of the continuous lie/truth rating.
const (
	RatingVideoMin       = -10
	RatingVideoMax       = 10
	RatingVideoDivisions = 60
)

// RatingVideo plays a video while the participant continuously rates it.
// Timestamps are the video position. Finalization happens on a press
// (when lock-in is allowed) or when the video reaches its end, whichever
// comes first; the video pauses at that moment.
type RatingVideo struct {
	base
	opts    RatingVideoOptions
	media   playback
	sampler *sampler.Sampler
}

// NewRatingVideo creates a rating video screen.
func NewRatingVideo(opts RatingVideoOptions, opener video.Opener, clk clock.Clock) *RatingVideo {
	return &RatingVideo{
		base:    base{name: opts.Name},
		opts:    opts,
		media:   playback{uri: opts.URI, opener: opener},
		sampler: sampler.New(RatingVideoMin, RatingVideoMax, 0, clk),
	}
}

// Init resets the sampler.
func (r *RatingVideo) Init() { r.sampler.Reset() }

// Show starts playback.
func (r *RatingVideo) Show() error { return r.media.open() }

// Hide pauses and releases the video.
func (r *RatingVideo) Hide() { r.media.close() }

func (r *RatingVideo) finalize() {
	if r.sampler.Finalize(r.media.position) {
		r.media.mustPlayer().SetPaused(true)
	}
}

// Update handles one tick.
func (r *RatingVideo) Update(ev *dial.Event) Directive {
	if ev != nil {
		switch {
		case ev.Kind == dial.EventRotate:
			r.sampler.ApplyRotation(ev.Direction)
		case ev.IsPress():
			if r.sampler.IsFinalized() {
				return Advance("")
			}
			if r.opts.AllowLockIn {
				r.finalize()
			}
		}
	}

	if !r.sampler.IsFinalized() && video.Finished(r.media.mustPlayer()) {
		r.finalize()
	}

	r.sampler.Tick(r.media.position)
	return Stay()
}

// Render shows the video with the gauge overlay.
func (r *RatingVideo) Render() View {
	left, right := LabelLie, LabelTruth
	if r.opts.Mirror {
		left, right = right, left
	}
	v := View{
		Kind:   KindVideo,
		Video:  r.opts.URI,
		Paused: r.media.paused(),
		Gauge: &Gauge{
			Value:      r.sampler.Value(),
			Min:        RatingVideoMin,
			Max:        RatingVideoMax,
			LeftLabel:  left,
			RightLabel: right,
			Disabled:   r.sampler.IsFinalized(),
		},
		Selected: -1,
	}
	if r.sampler.IsFinalized() {
		v.NextEnabled = true
		v.Prompt = ContinuePrompt
	}
	return v
}

// Data returns the decision log once finalized.
func (r *RatingVideo) Data() *dataset.Dataset {
	final, ok := r.sampler.Final()
	if !ok {
		return nil
	}
	return dataset.DecisionLog(r.opts.Name, r.sampler.Samples(), final, r.opts.Mirror)
}

// DialConfig returns the fine detent setting of the continuous scale.
func (r *RatingVideo) DialConfig() (dial.Config, bool) {
	return dial.Detents(RatingVideoDivisions), true
}

// Sampler exposes the underlying sampler for inspection.
func (r *RatingVideo) Sampler() *sampler.Sampler { return r.sampler }

// LockInVideo plays a video and records the moment the participant
// presses to lock in a decision. The dial configuration is inherited.
type LockInVideo struct {
	base
	media    playback
	locked   bool
	finished bool
	at       time.Duration
}

// NewLockInVideo creates a lock-in video screen recording into dataset name.
func NewLockInVideo(name, uri string, opener video.Opener) *LockInVideo {
	return &LockInVideo{
		base:  base{name: name},
		media: playback{uri: uri, opener: opener},
	}
}

// Init clears the lock-in.
func (l *LockInVideo) Init() {
	l.locked = false
	l.finished = false
	l.at = 0
}

// Show starts playback.
func (l *LockInVideo) Show() error { return l.media.open() }

// Hide pauses and releases the video.
func (l *LockInVideo) Hide() { l.media.close() }

// Update locks in on the first press and advances on the next. Reaching
// the end of the video finishes without a lock-in.
func (l *LockInVideo) Update(ev *dial.Event) Directive {
	if ev.IsPress() {
		if l.finished {
			return Advance("")
		}
		player := l.media.mustPlayer()
		l.at = player.Position()
		l.locked = true
		l.finished = true
		player.SetPaused(true)
		return Stay()
	}

	if !l.finished {
		if player := l.media.mustPlayer(); video.Finished(player) {
			l.at = player.Position()
			l.finished = true
		}
	}
	return Stay()
}

// Render shows the video.
func (l *LockInVideo) Render() View {
	v := View{
		Kind:     KindVideo,
		Video:    l.media.uri,
		Paused:   l.media.paused(),
		Selected: -1,
	}
	if l.finished {
		v.NextEnabled = true
		v.Prompt = ContinuePrompt
	}
	return v
}

// Data returns a single final row: the lock-in position and 1, or the end
// position and 0 when the video ended first.
func (l *LockInVideo) Data() *dataset.Dataset {
	if !l.finished {
		return nil
	}
	value := 0
	if l.locked {
		value = 1
	}
	row := fmt.Sprintf("%s,%d,%d", dataset.RowFinal, l.at.Milliseconds(), value)
	return dataset.New(l.Name(), dataset.DecisionHeader, row)
}

// Video plays a video without recording anything and advances on a press
// after it has ended.
type Video struct {
	base
	media    playback
	finished bool
}

// NewVideo creates a watch-only video screen.
func NewVideo(name, uri string, opener video.Opener) *Video {
	return &Video{base: base{name: name}, media: playback{uri: uri, opener: opener}}
}

// Init clears the finished flag.
func (v *Video) Init() { v.finished = false }

// Show starts playback.
func (v *Video) Show() error { return v.media.open() }

// Hide pauses and releases the video.
func (v *Video) Hide() { v.media.close() }

// Update advances on a press once the video has ended.
func (v *Video) Update(ev *dial.Event) Directive {
	if !v.finished && video.Finished(v.media.mustPlayer()) {
		v.finished = true
	}
	if v.finished && ev.IsPress() {
		return Advance("")
	}
	return Stay()
}

// Render shows the video.
func (v *Video) Render() View {
	view := View{
		Kind:     KindVideo,
		Video:    v.media.uri,
		Paused:   v.media.paused(),
		Selected: -1,
	}
	if v.finished {
		view.NextEnabled = true
		view.Prompt = ContinuePrompt
	}
	return view
}
