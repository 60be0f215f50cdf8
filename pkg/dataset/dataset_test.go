package dataset

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/pkg/sampler"
)

func TestDecisionLog(t *testing.T) {
	samples := []sampler.Sample{
		{At: 1200 * time.Millisecond, Value: 3},
		{At: 2500 * time.Millisecond, Value: -2},
	}
	final := sampler.Sample{At: 4 * time.Second, Value: -5}

	tests := []struct {
		name   string
		mirror bool
		want   []string
	}{
		{"plain", false, []string{"decision,1200,3", "decision,2500,-2", "final,4000,-5"}},
		{"mirrored", true, []string{"decision,1200,-3", "decision,2500,2", "final,4000,5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecisionLog("lie_truth_dynamic_0", samples, final, tt.mirror)
			if d.Header != DecisionHeader {
				t.Errorf("Header = %q", d.Header)
			}
			if len(d.Rows) != len(samples)+1 {
				t.Fatalf("len(Rows) = %d, want %d", len(d.Rows), len(samples)+1)
			}
			for i, w := range tt.want {
				if d.Rows[i] != w {
					t.Errorf("Rows[%d] = %q, want %q", i, d.Rows[i], w)
				}
			}
			if err := d.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestDecisionLogNoSamples(t *testing.T) {
	d := DecisionLog("confidence_1", nil, sampler.Sample{}, false)
	if len(d.Rows) != 1 || d.Rows[0] != "final,0,0" {
		t.Errorf("Rows = %v", d.Rows)
	}
}

func TestBytes(t *testing.T) {
	d := New("demographics_age", "text", "34")
	if got := string(d.Bytes()); got != "text\n34\n" {
		t.Errorf("Bytes() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       *Dataset
		wantErr bool
	}{
		{"ok", New("x", "index,label", "1,Female"), false},
		{"extra field", New("x", "index,label", "1,White,British"), true},
		{"no name", New("", "text", "a"), true},
		{"sanitized", New("x", "index,label", "1,"+SanitizeField("White, British")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a,b\nc", "a;b c"},
		{`he said "no"`, "he said 'no'"},
		{"line\r\nbreak", "line  break"},
	}

	for _, tt := range tests {
		got := SanitizeField(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeField(%q) = %q, want %q", tt.in, got, tt.want)
		}

		ds := New("free_text", "text", got)
		records, err := csv.NewReader(strings.NewReader(ds.Header + "\n" + ds.Rows[0] + "\n")).ReadAll()
		if err != nil {
			t.Errorf("%q does not read back as CSV: %v", got, err)
			continue
		}
		if len(records) != 2 || len(records[1]) != 1 || records[1][0] != got {
			t.Errorf("%q read back as %q", got, records)
		}
	}
}
