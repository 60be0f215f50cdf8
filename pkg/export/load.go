// Package export turns the per-participant CSV datasets into the Excel
// reports used for analysis.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/sequencer"
	"github.com/dialstudy/dialstudy/pkg/storage"
)

// Sample is one decision or final row, timestamp in milliseconds.
type Sample struct {
	At    int64
	Value int
}

// Log is a decision dataset.
type Log struct {
	Decisions []Sample
	Final     Sample
}

// Choice is a multiple choice answer.
type Choice struct {
	Index int
	Label string
}

// Block is one trial with the datasets it produced. Logs are nil when the
// condition has no such screen or the session stopped before it.
type Block struct {
	sequencer.Trial
	Dynamic    *Log
	LockIn     *Log
	Decision   *Log // dichotomous or lock-in decision
	Confidence *Log
}

// Participant is everything recorded for one participant id.
type Participant struct {
	ID             uint32
	Condition      string
	Counterbalance bool
	Blocks         []Block

	Age    string
	Gender *Choice
	Race   *Choice
}

// ListParticipants returns the ids with a trial plan in store, ascending.
func ListParticipants(ctx context.Context, store storage.ObjectStorage) ([]uint32, error) {
	objects, err := store.List(ctx, "", storage.ListOptions{Suffix: sequencer.PlanDatasetName + ".csv"})
	if err != nil {
		return nil, err
	}

	var ids []uint32
	for _, o := range objects {
		dir := path.Dir(o.Path)
		id, err := strconv.ParseUint(path.Base(dir), 10, 32)
		if err != nil || path.Dir(dir) != "." {
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Load reads the datasets of one participant.
func Load(ctx context.Context, store storage.ObjectStorage, pid uint32) (*Participant, error) {
	plan, err := readTable(ctx, store, pid, sequencer.PlanDatasetName)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("participant %d has no %s", pid, sequencer.PlanDatasetName)
	}

	p := &Participant{ID: pid}
	for i := range plan.rows {
		var t sequencer.Trial
		if t.Block, err = plan.atoi(i, "block"); err != nil {
			return nil, err
		}
		if t.VideoID, err = plan.atoi(i, "video_id"); err != nil {
			return nil, err
		}
		if t.Bucket, err = plan.atoi(i, "bucket"); err != nil {
			return nil, err
		}
		t.Path = plan.get(i, "path")
		p.Condition = plan.get(i, "condition")
		p.Counterbalance = plan.get(i, "counterbalance") == "true"

		b := Block{Trial: t}
		logs := []struct {
			dst  **Log
			name string
		}{
			{&b.Dynamic, sequencer.DynamicName(t.VideoID)},
			{&b.LockIn, sequencer.LockInName(t.VideoID)},
			{&b.Decision, sequencer.DichotomousName(t.VideoID)},
			{&b.Decision, sequencer.LockInDecisionName(t.VideoID)},
			{&b.Confidence, sequencer.ConfidenceName(t.VideoID)},
		}
		for _, l := range logs {
			log, err := readLog(ctx, store, pid, l.name)
			if err != nil {
				return nil, err
			}
			if log != nil {
				*l.dst = log
			}
		}
		p.Blocks = append(p.Blocks, b)
	}
	sort.Slice(p.Blocks, func(i, j int) bool { return p.Blocks[i].Block < p.Blocks[j].Block })

	age, err := readTable(ctx, store, pid, sequencer.AgeDatasetName)
	if err != nil {
		return nil, err
	}
	if age != nil && len(age.rows) > 0 {
		p.Age = age.get(0, "text")
	}
	if p.Gender, err = readChoice(ctx, store, pid, sequencer.GenderDatasetName); err != nil {
		return nil, err
	}
	if p.Race, err = readChoice(ctx, store, pid, sequencer.RaceDatasetName); err != nil {
		return nil, err
	}
	return p, nil
}

// table is a parsed dataset with columns looked up by header name.
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func (t *table) get(row int, col string) string {
	i, ok := t.columns[col]
	if !ok || i >= len(t.rows[row]) {
		return ""
	}
	return t.rows[row][i]
}

func (t *table) atoi(row int, col string) (int, error) {
	v, err := strconv.Atoi(t.get(row, col))
	if err != nil {
		return 0, fmt.Errorf("%s row %d: bad %s: %w", t.name, row+1, col, err)
	}
	return v, nil
}

// readTable returns nil when the dataset does not exist.
func readTable(ctx context.Context, store storage.ObjectStorage, pid uint32, name string) (*table, error) {
	p := fmt.Sprintf("%d/%s.csv", pid, name)
	r, err := store.Get(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()

	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty dataset", p)
	}

	t := &table{name: p, columns: make(map[string]int), rows: records[1:]}
	for i, h := range records[0] {
		t.columns[strings.TrimSpace(h)] = i
	}
	return t, nil
}

func readLog(ctx context.Context, store storage.ObjectStorage, pid uint32, name string) (*Log, error) {
	t, err := readTable(ctx, store, pid, name)
	if err != nil || t == nil {
		return nil, err
	}

	log := &Log{}
	hasFinal := false
	for i := range t.rows {
		at, err := t.atoi(i, "timestamp")
		if err != nil {
			return nil, err
		}
		v, err := t.atoi(i, "value")
		if err != nil {
			return nil, err
		}
		s := Sample{At: int64(at), Value: v}
		switch t.get(i, "type") {
		case dataset.RowDecision:
			log.Decisions = append(log.Decisions, s)
		case dataset.RowFinal:
			log.Final = s
			hasFinal = true
		}
	}
	if !hasFinal {
		return nil, fmt.Errorf("%s: no final row", t.name)
	}
	return log, nil
}

func readChoice(ctx context.Context, store storage.ObjectStorage, pid uint32, name string) (*Choice, error) {
	t, err := readTable(ctx, store, pid, name)
	if err != nil || t == nil || len(t.rows) == 0 {
		return nil, err
	}
	idx, err := t.atoi(0, "index")
	if err != nil {
		return nil, err
	}
	return &Choice{Index: idx, Label: strings.TrimSpace(t.get(0, "label"))}, nil
}
