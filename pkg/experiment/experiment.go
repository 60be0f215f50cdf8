// Package experiment loads the experiment document: the video pool, the
// participant roster and optional content overrides.
package experiment

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
)

// Conditions a participant can be assigned to.
const (
	ConditionDynamic     = "dynamic"
	ConditionDichotomous = "dichotomous"
	ConditionLockIn      = "lock_in"
)

// Document is the parsed experiment file.
type Document struct {
	Config       DisplayConfig          `yaml:"config"`
	Videos       VideoPool              `yaml:"videos"`
	Participants map[uint32]Participant `yaml:"participants"`
	Consent      []string               `yaml:"consent"`
	Instructions map[string][]string    `yaml:"instructions"`

	path string
}

// DisplayConfig holds presentation settings passed to the front end.
type DisplayConfig struct {
	Scaling *float64 `yaml:"scaling"`
}

// VideoPool lists the stimulus videos.
type VideoPool struct {
	IDs []int `yaml:"ids"`
	Num int   `yaml:"num"`
	// DurationsMS optionally maps a video path to its length.
	DurationsMS map[string]int64 `yaml:"durations_ms"`
}

// Participant is one roster entry.
type Participant struct {
	Counterbalance bool   `yaml:"counterbalance"`
	Condition      string `yaml:"condition"`
}

// UnmarshalYAML accepts "control" as an older spelling of "counterbalance".
func (p *Participant) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Counterbalance *bool  `yaml:"counterbalance"`
		Control        *bool  `yaml:"control"`
		Condition      string `yaml:"condition"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.Counterbalance != nil:
		p.Counterbalance = *raw.Counterbalance
	case raw.Control != nil:
		p.Counterbalance = *raw.Control
	}
	p.Condition = raw.Condition
	return nil
}

// Load reads and validates the document at path. Any failure is a
// configuration error the caller should treat as fatal.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "experiment file not found").
				WithContext("path", path)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidConfig, "cannot read experiment file").
			WithContext("path", path)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.path = path
	return doc, nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidConfig, "malformed experiment document")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string { return d.path }

// Validate checks the fields the session depends on.
func (d *Document) Validate() error {
	if len(d.Videos.IDs) == 0 {
		return apperrors.MissingField(d.path, "videos.ids")
	}
	if d.Videos.Num <= 0 {
		return apperrors.MissingField(d.path, "videos.num")
	}
	if d.Videos.Num > len(d.Videos.IDs) {
		return apperrors.InvalidConfig(d.path,
			fmt.Sprintf("videos.num %d exceeds the %d ids available", d.Videos.Num, len(d.Videos.IDs)))
	}
	seen := make(map[int]bool, len(d.Videos.IDs))
	for _, id := range d.Videos.IDs {
		if seen[id] {
			return apperrors.InvalidConfig(d.path, fmt.Sprintf("duplicate video id %d", id))
		}
		seen[id] = true
	}

	if len(d.Participants) == 0 {
		return apperrors.MissingField(d.path, "participants")
	}
	for id, p := range d.Participants {
		if !KnownCondition(p.Condition) {
			return apperrors.InvalidConfig(d.path,
				fmt.Sprintf("participant %d has unknown condition %q", id, p.Condition))
		}
	}

	if d.Config.Scaling != nil && *d.Config.Scaling <= 0 {
		return apperrors.InvalidConfig(d.path, "config.scaling must be positive")
	}
	return nil
}

// KnownCondition reports whether c is a supported condition tag.
func KnownCondition(c string) bool {
	switch c {
	case ConditionDynamic, ConditionDichotomous, ConditionLockIn:
		return true
	default:
		return false
	}
}

// Lookup parses input as a participant id and finds its roster entry.
func (d *Document) Lookup(input string) (uint32, Participant, error) {
	s := strings.TrimSpace(input)
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, Participant{}, apperrors.UnknownParticipant(input)
	}
	p, ok := d.Participants[uint32(id)]
	if !ok {
		return 0, Participant{}, apperrors.UnknownParticipant(input)
	}
	return uint32(id), p, nil
}

// Durations returns the configured video lengths keyed by video path.
func (d *Document) Durations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(d.Videos.DurationsMS))
	for uri, ms := range d.Videos.DurationsMS {
		out[uri] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// Scaling returns the UI scale factor, 1 when unset.
func (d *Document) Scaling() float64 {
	if d.Config.Scaling == nil {
		return 1
	}
	return *d.Config.Scaling
}

// ParticipantIDs returns the roster ids in ascending order.
func (d *Document) ParticipantIDs() []uint32 {
	ids := make([]uint32, 0, len(d.Participants))
	for id := range d.Participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
