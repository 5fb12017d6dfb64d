// Package report assembles per-face detection records into the run summary
// and writes it, or a structured error payload, as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// DetectionRecord is the outcome for one unique face in one image.
type DetectionRecord struct {
	ImageIndex  int     `json:"imageIndex"`
	FaceIndex   int     `json:"faceIndex"`
	BoundingBox [4]int  `json:"bbox"`
	Confidence  float64 `json:"confidence"`
	// Identity is nil when the face matched no enrolled identity.
	Identity *string `json:"studentId"`
}

// NewRecord builds a record for a face. An empty identity means no match.
func NewRecord(imageIndex, faceIndex int, box face.BoundingBox, confidence float64, identity string) DetectionRecord {
	r := DetectionRecord{
		ImageIndex:  imageIndex,
		FaceIndex:   faceIndex,
		BoundingBox: box.Ints(),
		Confidence:  confidence,
	}
	if identity != "" {
		id := identity
		r.Identity = &id
	}
	return r
}

// Matched reports whether the record carries an identity.
func (r DetectionRecord) Matched() bool {
	return r.Identity != nil
}

// IdentityKey returns the matched identity or "".
func (r DetectionRecord) IdentityKey() string {
	if r.Identity == nil {
		return ""
	}
	return *r.Identity
}

// Summary aggregates the detection records of a recognition run.
type Summary struct {
	TotalFaces         int               `json:"totalFaces"`
	RecognizedStudents []string          `json:"recognizedStudents"`
	AverageConfidence  float64           `json:"averageConfidence"`
	RecognitionRate    float64           `json:"recognitionRate"`
	Detections         []DetectionRecord `json:"detections"`
	ProcessedImages    int               `json:"processedImages"`
}

// Summarize builds the summary for records. Average confidence is taken over
// matched faces only and the recognition rate is the matched share of all
// faces; both are 0 when nothing matched.
func Summarize(records []DetectionRecord, processedImages int) Summary {
	s := Summary{
		TotalFaces:         len(records),
		RecognizedStudents: []string{},
		Detections:         records,
		ProcessedImages:    processedImages,
	}
	if s.Detections == nil {
		s.Detections = []DetectionRecord{}
	}

	seen := make(map[string]bool)
	var sum float64
	matched := 0
	for _, r := range records {
		if !r.Matched() {
			continue
		}
		matched++
		sum += r.Confidence
		if id := *r.Identity; !seen[id] {
			seen[id] = true
			s.RecognizedStudents = append(s.RecognizedStudents, id)
		}
	}
	sort.Strings(s.RecognizedStudents)

	if matched > 0 {
		s.AverageConfidence = sum / float64(matched)
	}
	if s.TotalFaces > 0 {
		s.RecognitionRate = float64(matched) / float64(s.TotalFaces)
	}
	return s
}

// SortRecords orders records by image index, then face index.
func SortRecords(records []DetectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ImageIndex != records[j].ImageIndex {
			return records[i].ImageIndex < records[j].ImageIndex
		}
		return records[i].FaceIndex < records[j].FaceIndex
	})
}

// WriteJSON writes v as a single JSON object followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
