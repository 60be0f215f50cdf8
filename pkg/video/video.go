// Package video defines the playback collaborator used by video screens.
// Decoding and presentation belong to the front end; screens only need
// position, duration and pause control.
package video

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
)

// Player controls one loaded video.
type Player interface {
	URI() string
	Position() time.Duration
	Duration() time.Duration
	SetPaused(paused bool)
	Paused() bool
	Close() error
}

// Opener loads a video by URI and starts playback.
type Opener interface {
	Open(uri string) (Player, error)
}

// EndBuffer is how close to the end playback counts as finished.
const EndBuffer = 25 * time.Millisecond

// Finished reports whether p is within EndBuffer of its end.
func Finished(p Player) bool {
	return p.Position()+EndBuffer >= p.Duration()
}

// ClockPlayer is a player whose position advances with a clock.
// It stands in for a decoder when the front end renders elsewhere.
type ClockPlayer struct {
	mu       sync.Mutex
	uri      string
	clock    clock.Clock
	duration time.Duration

	played    time.Duration
	resumedAt time.Time
	paused    bool
	closed    bool
}

// NewClockPlayer starts playing uri immediately.
func NewClockPlayer(uri string, duration time.Duration, clk clock.Clock) *ClockPlayer {
	return &ClockPlayer{
		uri:       uri,
		clock:     clk,
		duration:  duration,
		resumedAt: clk.Now(),
	}
}

// URI returns the loaded video.
func (p *ClockPlayer) URI() string { return p.uri }

// Duration returns the total length.
func (p *ClockPlayer) Duration() time.Duration { return p.duration }

// Position returns the playback position, capped at Duration.
func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *ClockPlayer) positionLocked() time.Duration {
	pos := p.played
	if !p.paused && !p.closed {
		pos += p.clock.Now().Sub(p.resumedAt)
	}
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// SetPaused pauses or resumes playback.
func (p *ClockPlayer) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if paused == p.paused {
		return
	}
	if paused {
		p.played = p.positionLocked()
	} else {
		p.resumedAt = p.clock.Now()
	}
	p.paused = paused
}

// Paused reports whether playback is paused.
func (p *ClockPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Close stops playback.
func (p *ClockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.played = p.positionLocked()
		p.closed = true
	}
	return nil
}

// DurationSetter is an Opener whose known video lengths can be replaced,
// e.g. when the experiment document is reloaded.
type DurationSetter interface {
	SetDurations(durations map[string]time.Duration)
}

// Library opens ClockPlayers for videos under Root.
type Library struct {
	Root            string
	Clock           clock.Clock
	Durations       map[string]time.Duration
	DefaultDuration time.Duration
	// RequireFiles makes Open fail when the file is missing under Root.
	RequireFiles bool

	mu sync.RWMutex // guards Durations after construction
}

// SetDurations replaces the known video lengths. Players already open
// keep their duration.
func (l *Library) SetDurations(durations map[string]time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Durations = durations
}

func (l *Library) duration(uri string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if d, ok := l.Durations[uri]; ok {
		return d
	}
	return l.DefaultDuration
}

// Open resolves uri against Root and starts a ClockPlayer.
func (l *Library) Open(uri string) (Player, error) {
	if l.RequireFiles {
		path := uri
		if !filepath.IsAbs(path) && l.Root != "" {
			path = filepath.Join(l.Root, uri)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("video %s: %w", uri, err)
		}
	}

	d := l.duration(uri)
	if d <= 0 {
		return nil, fmt.Errorf("video %s: unknown duration", uri)
	}

	clk := l.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return NewClockPlayer(uri, d, clk), nil
}

var (
	_ Player         = (*ClockPlayer)(nil)
	_ Opener         = (*Library)(nil)
	_ DurationSetter = (*Library)(nil)
)
