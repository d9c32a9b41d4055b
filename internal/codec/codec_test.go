package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Detection
	}{
		{
			name:  "empty input",
			input: "",
			want:  []Detection{},
		},
		{
			name:  "only separators",
			input: "|||",
			want:  []Detection{},
		},
		{
			name:  "single entry with trailing separator",
			input: "0,0.9,100,100,50,50|",
			want: []Detection{
				{ClassID: 0, Score: 0.9, CenterX: 100, CenterY: 100, Width: 50, Height: 50},
			},
		},
		{
			name:  "single entry without separator",
			input: "7,0.5,1,2,3,4",
			want: []Detection{
				{ClassID: 7, Score: 0.5, CenterX: 1, CenterY: 2, Width: 3, Height: 4},
			},
		},
		{
			name:  "malformed middle entry is skipped",
			input: "0,0.9,100,100,50,50|bad|1,0.5,10,10,5,5",
			want: []Detection{
				{ClassID: 0, Score: 0.9, CenterX: 100, CenterY: 100, Width: 50, Height: 50},
				{ClassID: 1, Score: 0.5, CenterX: 10, CenterY: 10, Width: 5, Height: 5},
			},
		},
		{
			name:  "too many fields",
			input: "0,0.9,100,100,50,50,1|2,0.1,1,1,1,1",
			want: []Detection{
				{ClassID: 2, Score: 0.1, CenterX: 1, CenterY: 1, Width: 1, Height: 1},
			},
		},
		{
			name:  "non integer class id",
			input: "1.5,0.9,1,1,1,1|3,0.8,2,2,2,2",
			want: []Detection{
				{ClassID: 3, Score: 0.8, CenterX: 2, CenterY: 2, Width: 2, Height: 2},
			},
		},
		{
			name:  "non numeric float field",
			input: "1,0.9,x,1,1,1|4,0.7,3,3,3,3|",
			want: []Detection{
				{ClassID: 4, Score: 0.7, CenterX: 3, CenterY: 3, Width: 3, Height: 3},
			},
		},
		{
			name:  "out of range values pass through",
			input: "-2,1.5,0,0,0,0|999,0.3,1,1,1,1",
			want: []Detection{
				{ClassID: -2, Score: 1.5},
				{ClassID: 999, Score: 0.3, CenterX: 1, CenterY: 1, Width: 1, Height: 1},
			},
		},
		{
			name:  "native engine formatting",
			input: "3,0.871234,160.500000,120.000000,40.000000,80.000000|",
			want: []Detection{
				{ClassID: 3, Score: 0.871234, CenterX: 160.5, CenterY: 120, Width: 40, Height: 80},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestDecode_NonFiniteFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "nan score", input: "0,nan,160,160,32,32|"},
		{name: "inf width", input: "0,0.5,160,160,inf,32|"},
		{name: "negative inf center", input: "0,0.5,-inf,160,32,32|"},
		{name: "upper case NaN", input: "0,0.5,160,NaN,32,32|"},
		{name: "infinity spelled out", input: "0,0.5,160,160,32,Infinity|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets, report := DecodeWithReport(tt.input + "1,0.5,10,10,5,5|")
			want := []Detection{{ClassID: 1, Score: 0.5, CenterX: 10, CenterY: 10, Width: 5, Height: 5}}
			if diff := cmp.Diff(want, dets); diff != "" {
				t.Errorf("DecodeWithReport(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
			if report.Skipped != 1 {
				t.Errorf("report.Skipped = %d, want 1", report.Skipped)
			}
		})
	}
}

func TestDecodeWithReport(t *testing.T) {
	dets, report := DecodeWithReport("0,0.9,100,100,50,50|bad||1,0.5,10,10,5,5|2,x,1,1,1,1")

	if len(dets) != 2 {
		t.Fatalf("len(dets) = %d, want 2", len(dets))
	}
	if report.Entries != 4 {
		t.Errorf("report.Entries = %d, want 4", report.Entries)
	}
	if report.Skipped != 2 {
		t.Errorf("report.Skipped = %d, want 2", report.Skipped)
	}
}

func TestEncode(t *testing.T) {
	dets := []Detection{
		{ClassID: 3, Score: 0.5, CenterX: 160, CenterY: 120.25, Width: 40, Height: 80},
		{ClassID: 14, Score: 0.975, CenterX: 1, CenterY: 2, Width: 3, Height: 4},
	}

	got := Encode(dets)
	want := "3,0.500000,160.000000,120.250000,40.000000,80.000000|" +
		"14,0.975000,1.000000,2.000000,3.000000,4.000000|"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}

	if diff := cmp.Diff(dets, Decode(got)); diff != "" {
		t.Errorf("Decode(Encode()) mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Empty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil) = %q, want empty", got)
	}
}
