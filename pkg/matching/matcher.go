// Package matching assigns gallery identities to the faces of one image.
package matching

import (
	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/logging"
	"github.com/MrCodeEU/faceroll/pkg/report"
)

// DefaultThreshold is the similarity a match must strictly exceed.
const DefaultThreshold = 0.45

// Match is the best candidate found for one face.
type Match struct {
	Identity   string
	Similarity float64
}

// MatchFaces matches faces, in order, against g. Each identity is assigned to
// at most one face of the image: once accepted it is no longer a candidate.
//
// Gallery identities are compared in key order and a later identity only wins
// with a strictly higher similarity, so ties go to the smaller key. An
// unmatched face reports the best similarity over the whole gallery, which can
// come from an identity already claimed by an earlier face. Faces with a
// zero-norm embedding get no record; faceIndex keeps their position.
func MatchFaces(imageIndex int, faces []face.Face, g *gallery.Gallery, threshold float64) []report.DetectionRecord {
	records := make([]report.DetectionRecord, 0, len(faces))
	used := make(map[string]bool)

	for i, f := range faces {
		if !f.Embedding.Valid() {
			logging.WithFields(logging.Fields{
				"image_index": imageIndex,
				"face_index":  i,
			}).Warn("Skipping face with zero-norm embedding")
			continue
		}

		available, overall := bestMatches(f.Embedding, g, used)

		identity := ""
		confidence := overall.Similarity
		if available.Identity != "" && available.Similarity > threshold {
			identity = available.Identity
			confidence = available.Similarity
			used[identity] = true
		}

		records = append(records, report.NewRecord(imageIndex, i, f.BoundingBox, confidence, identity))
	}

	return records
}

// bestMatches returns the best identity not in used and the best identity
// overall. Both are zero values for an empty gallery.
func bestMatches(emb face.Embedding, g *gallery.Gallery, used map[string]bool) (available, overall Match) {
	if g == nil {
		return Match{}, Match{}
	}

	first := true
	availableFirst := true
	g.Each(func(key string, ref face.Embedding) bool {
		sim := face.CosineSimilarity(emb, ref)
		if first || sim > overall.Similarity {
			overall = Match{Identity: key, Similarity: sim}
			first = false
		}
		if !used[key] && (availableFirst || sim > available.Similarity) {
			available = Match{Identity: key, Similarity: sim}
			availableFirst = false
		}
		return true
	})
	return available, overall
}

// Best returns the most similar identity in g, ignoring reuse.
func Best(emb face.Embedding, g *gallery.Gallery) Match {
	_, overall := bestMatches(emb, g, nil)
	return overall
}
