// Package dataset holds the tabular records screens hand to the sink.
package dataset

import (
	"fmt"
	"strings"

	"github.com/dialstudy/dialstudy/pkg/sampler"
)

// DecisionHeader is the header of every sampler-backed dataset.
const DecisionHeader = "type,timestamp,value"

// Row type tags used in decision datasets.
const (
	RowDecision = "decision"
	RowFinal    = "final"
)

// Dataset is a named header plus rows, each a comma-separated line.
// It must not be modified once handed to the sink.
type Dataset struct {
	Name   string
	Header string
	Rows   []string
}

// New creates a dataset.
func New(name, header string, rows ...string) *Dataset {
	return &Dataset{Name: name, Header: header, Rows: rows}
}

// Fields returns the number of comma-separated fields in line.
func Fields(line string) int {
	return strings.Count(line, ",") + 1
}

// Validate checks that every row has as many fields as the header.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dataset has no name")
	}
	want := Fields(d.Header)
	for i, r := range d.Rows {
		if got := Fields(r); got != want {
			return fmt.Errorf("dataset %s row %d has %d fields, header has %d", d.Name, i, got, want)
		}
	}
	return nil
}

// Bytes renders the header and rows newline-joined with a trailing newline.
func (d *Dataset) Bytes() []byte {
	var sb strings.Builder
	sb.WriteString(d.Header)
	sb.WriteByte('\n')
	for _, r := range d.Rows {
		sb.WriteString(r)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// SanitizeField replaces characters that would break the row schema.
func SanitizeField(s string) string {
	s = strings.ReplaceAll(s, ",", ";")
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// DecisionLog serializes sampler output: one decision row per interim
// sample and one final row. Mirror negates recorded values.
func DecisionLog(name string, samples []sampler.Sample, final sampler.Sample, mirror bool) *Dataset {
	sign := 1
	if mirror {
		sign = -1
	}

	rows := make([]string, 0, len(samples)+1)
	for _, s := range samples {
		rows = append(rows, decisionRow(RowDecision, s, sign))
	}
	rows = append(rows, decisionRow(RowFinal, final, sign))

	return New(name, DecisionHeader, rows...)
}

func decisionRow(kind string, s sampler.Sample, sign int) string {
	return fmt.Sprintf("%s,%d,%d", kind, s.At.Milliseconds(), s.Value*sign)
}
