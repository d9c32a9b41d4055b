// Package codec decodes the detector's textual result encoding.
//
// The wire format is a sequence of entries separated by '|'. Each entry is
// six comma-separated fields:
//
//	classId,score,centerX,centerY,width,height
//
// Box fields are in model space. Decoding is best effort: malformed entries
// are skipped and the rest of the batch still decodes.
package codec

import (
	"math"
	"strconv"
	"strings"
)

const (
	// EntrySeparator separates detections in a result string.
	EntrySeparator = "|"
	// FieldSeparator separates the fields of a single detection.
	FieldSeparator = ","
	// FieldCount is the number of fields in a well-formed entry.
	FieldCount = 6
)

// Detection is a single detected box in model space.
type Detection struct {
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Report summarises a decode pass.
type Report struct {
	Entries int // non-empty entries seen
	Skipped int // entries dropped as malformed
}

// Decode parses a result string into detections, preserving order.
// Empty input yields an empty slice.
func Decode(text string) []Detection {
	dets, _ := DecodeWithReport(text)
	return dets
}

// DecodeWithReport is Decode that also reports how many entries were skipped.
func DecodeWithReport(text string) ([]Detection, Report) {
	var report Report
	dets := []Detection{}
	if text == "" {
		return dets, report
	}

	for _, entry := range strings.Split(text, EntrySeparator) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		report.Entries++

		d, ok := parseEntry(entry)
		if !ok {
			report.Skipped++
			continue
		}
		dets = append(dets, d)
	}

	return dets, report
}

func parseEntry(entry string) (Detection, bool) {
	fields := strings.Split(entry, FieldSeparator)
	if len(fields) != FieldCount {
		return Detection{}, false
	}

	classID, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Detection{}, false
	}

	var vals [FieldCount - 1]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		// ParseFloat accepts "nan" and "inf"; neither is a usable box.
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Detection{}, false
		}
		vals[i] = v
	}

	return Detection{
		ClassID: classID,
		Score:   vals[0],
		CenterX: vals[1],
		CenterY: vals[2],
		Width:   vals[3],
		Height:  vals[4],
	}, true
}

// Encode renders detections in the wire format. Every entry is terminated
// by the separator and floats carry six fractional digits, matching the
// native engine's output.
func Encode(dets []Detection) string {
	var b strings.Builder
	for _, d := range dets {
		b.WriteString(strconv.Itoa(d.ClassID))
		for _, v := range [...]float64{d.Score, d.CenterX, d.CenterY, d.Width, d.Height} {
			b.WriteString(FieldSeparator)
			b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		}
		b.WriteString(EntrySeparator)
	}
	return b.String()
}
