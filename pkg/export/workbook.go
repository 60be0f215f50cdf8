package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

// book wraps an excelize file and keeps the first error, so report code
// can write cells without checking each call.
type book struct {
	f     *excelize.File
	bold  int
	fresh bool // Sheet1 not yet claimed
	err   error
}

func newBook() *book {
	b := &book{f: excelize.NewFile(), fresh: true}
	b.bold, b.err = b.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	return b
}

func (b *book) sheet(name string) {
	if b.err != nil {
		return
	}
	if b.fresh {
		b.fresh = false
		b.err = b.f.SetSheetName("Sheet1", name)
		return
	}
	_, b.err = b.f.NewSheet(name)
}

// row writes values starting at (col, row), 1-based.
func (b *book) row(sheet string, col, row int, bold bool, values ...any) {
	if b.err != nil || len(values) == 0 {
		return
	}
	start, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		b.err = err
		return
	}
	if b.err = b.f.SetSheetRow(sheet, start, &values); b.err != nil || !bold {
		return
	}
	end, _ := excelize.CoordinatesToCellName(col+len(values)-1, row)
	b.err = b.f.SetCellStyle(sheet, start, end, b.bold)
}

func (b *book) save(path string) error {
	defer b.f.Close()
	if b.err != nil {
		return b.err
	}
	return b.f.SaveAs(path)
}

// WriteParticipant writes one workbook per participant: a summary sheet
// and one sheet per block with the rating, decision and confidence logs
// side by side.
func WriteParticipant(p *Participant, path string) error {
	b := newBook()

	const summary = "Participant"
	b.sheet(summary)
	b.row(summary, 1, 1, true, "Participant", p.ID)
	b.row(summary, 1, 2, false, "Condition", p.Condition)
	b.row(summary, 1, 3, false, "Counterbalance", p.Counterbalance)
	b.row(summary, 1, 4, false, "Age", p.Age)
	b.row(summary, 1, 5, false, "Race", choiceText(p.Race))
	b.row(summary, 1, 6, false, "Gender", choiceText(p.Gender))

	for _, blk := range p.Blocks {
		name := fmt.Sprintf("Video %d", blk.Block)
		b.sheet(name)
		b.row(name, 1, 1, false, "Video path", blk.Path)
		b.row(name, 1, 2, false, "Video id", blk.VideoID)
		b.row(name, 1, 3, false, "Bucket", sequencer.BucketName(blk.Bucket))

		rating, title := blk.Dynamic, "Dynamic Decisions"
		if rating == nil {
			rating, title = blk.LockIn, "Lock In"
		}
		writeLog(b, name, 1, title, rating)
		writeLog(b, name, 5, "Final Decisions", blk.Decision)
		writeLog(b, name, 8, "Confidence Decisions", blk.Confidence)
	}

	return b.save(path)
}

func writeLog(b *book, sheet string, col int, title string, log *Log) {
	if log == nil {
		return
	}
	b.row(sheet, col, 4, true, title)
	b.row(sheet, col, 5, true, "Timestamp", "Interim decision")
	r := 6
	for _, d := range log.Decisions {
		b.row(sheet, col, r, false, d.At, d.Value)
		r++
	}
	r++
	b.row(sheet, col, r, true, "Final timestamp", "Final decision")
	b.row(sheet, col, r+1, false, log.Final.At, log.Final.Value)
}

func choiceText(c *Choice) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d)", c.Label, c.Index)
}

// decisionKey groups dynamic logs by stimulus.
type decisionKey struct {
	video  int
	bucket int
}

func dynamicLogs(ps []*Participant) (map[decisionKey]int, []decisionKey) {
	longest := make(map[decisionKey]int)
	for _, p := range ps {
		for _, blk := range p.Blocks {
			if blk.Dynamic == nil {
				continue
			}
			k := decisionKey{blk.VideoID, blk.Bucket}
			longest[k] = max(longest[k], len(blk.Dynamic.Decisions))
		}
	}
	keys := make([]decisionKey, 0, len(longest))
	for k := range longest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].video != keys[j].video {
			return keys[i].video < keys[j].video
		}
		return keys[i].bucket < keys[j].bucket
	})
	return longest, keys
}

func columnPrefix(k decisionKey) string {
	suffix := "T"
	if k.bucket == sequencer.BucketLie {
		suffix = "L"
	}
	return fmt.Sprintf("V%d%s", k.video, suffix)
}

// WriteAllDecisions writes one row per participant with every interim
// dynamic decision and its timestamp, in columns V{id}{L|T}_Dec{n} and
// V{id}{L|T}_Dec{n}_RT.
func WriteAllDecisions(ps []*Participant, path string) error {
	b := newBook()
	const sheet = "Data"
	b.sheet(sheet)

	longest, keys := dynamicLogs(ps)
	columns := make(map[string]int)
	header := []any{"ParticipantID"}
	for _, k := range keys {
		prefix := columnPrefix(k)
		for i := 1; i <= longest[k]; i++ {
			name := fmt.Sprintf("%s_Dec%d", prefix, i)
			columns[name] = len(header) + 1
			header = append(header, name)
		}
		for i := 1; i <= longest[k]; i++ {
			name := fmt.Sprintf("%s_Dec%d_RT", prefix, i)
			columns[name] = len(header) + 1
			header = append(header, name)
		}
	}
	b.row(sheet, 1, 1, true, header...)

	r := 2
	for _, p := range ps {
		wrote := false
		for _, blk := range p.Blocks {
			if blk.Dynamic == nil {
				continue
			}
			prefix := columnPrefix(decisionKey{blk.VideoID, blk.Bucket})
			for i, d := range blk.Dynamic.Decisions {
				b.row(sheet, columns[fmt.Sprintf("%s_Dec%d", prefix, i+1)], r, false, d.Value)
				b.row(sheet, columns[fmt.Sprintf("%s_Dec%d_RT", prefix, i+1)], r, false, d.At)
			}
			wrote = true
		}
		if wrote {
			b.row(sheet, 1, r, false, p.ID)
			r++
		}
	}

	return b.save(path)
}

// Choices recorded in the drift diffusion workbook.
const (
	ChoiceLie   = 1
	ChoiceTruth = 2
)

// WriteDDM writes one sheet per stimulus with each participant's final
// dynamic decision: response time in seconds and the binary choice.
func WriteDDM(ps []*Participant, path string) error {
	b := newBook()
	_, keys := dynamicLogs(ps)
	if len(keys) == 0 {
		b.sheet("Data")
	}

	for _, k := range keys {
		sheet := "Video " + columnPrefix(k)[1:]
		b.sheet(sheet)
		b.row(sheet, 1, 1, true, "ParticipantID", "RT", "Choice")

		r := 2
		for _, p := range ps {
			for _, blk := range p.Blocks {
				if blk.Dynamic == nil || blk.VideoID != k.video || blk.Bucket != k.bucket {
					continue
				}
				choice := ChoiceTruth
				if blk.Dynamic.Final.Value < 0 {
					choice = ChoiceLie
				}
				b.row(sheet, 1, r, false, p.ID, float64(blk.Dynamic.Final.At)/1000.0, choice)
				r++
			}
		}
	}

	return b.save(path)
}
