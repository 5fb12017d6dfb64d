package report

import (
	"context"
	"errors"

	"github.com/MrCodeEU/faceroll/pkg/enrollment"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/imageio"
)

// ErrorCode identifies a fatal run error.
type ErrorCode string

const (
	ErrCodeNoGallery       ErrorCode = "NO_GALLERY"
	ErrCodeEmptyGallery    ErrorCode = "EMPTY_GALLERY"
	ErrCodeInputNotFound   ErrorCode = "INPUT_NOT_FOUND"
	ErrCodeNoInputImages   ErrorCode = "NO_INPUT_IMAGES"
	ErrCodeNoFacesEnrolled ErrorCode = "NO_FACES_ENROLLED"
	ErrCodeCanceled        ErrorCode = "CANCELED"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

// Messages written into the error payload. The first four are the strings
// downstream consumers already match on.
var errorMessages = map[ErrorCode]string{
	ErrCodeNoGallery:       "No trained model found",
	ErrCodeEmptyGallery:    "No trained faces found",
	ErrCodeInputNotFound:   "Test images folder not found",
	ErrCodeNoInputImages:   "No images found in test folder",
	ErrCodeNoFacesEnrolled: "No faces enrolled",
	ErrCodeCanceled:        "Run canceled",
}

// Message returns the payload message for code.
func Message(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Recognition failed"
}

// CodeFor classifies err.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, gallery.ErrNoGallery):
		return ErrCodeNoGallery
	case errors.Is(err, gallery.ErrEmptyGallery):
		return ErrCodeEmptyGallery
	case errors.Is(err, imageio.ErrInputDirNotFound):
		return ErrCodeInputNotFound
	case errors.Is(err, imageio.ErrNoInputImages):
		return ErrCodeNoInputImages
	case errors.Is(err, enrollment.ErrNoFacesEnrolled):
		return ErrCodeNoFacesEnrolled
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	default:
		return ErrCodeInternal
	}
}

// ErrorPayload is printed instead of a Summary when a run fails.
type ErrorPayload struct {
	Error              string            `json:"error"`
	Code               ErrorCode         `json:"code"`
	TotalFaces         int               `json:"totalFaces"`
	RecognizedStudents []string          `json:"recognizedStudents"`
	AverageConfidence  float64           `json:"averageConfidence"`
	Detections         []DetectionRecord `json:"detections"`
}

// NewErrorPayload builds the payload for err. Unclassified errors carry their
// own text.
func NewErrorPayload(err error) ErrorPayload {
	code := CodeFor(err)
	msg := Message(code)
	if code == ErrCodeInternal && err != nil {
		msg = err.Error()
	}
	return ErrorPayload{
		Error:              msg,
		Code:               code,
		RecognizedStudents: []string{},
		Detections:         []DetectionRecord{},
	}
}
