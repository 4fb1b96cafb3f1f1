package framecollector

import (
	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/change"
)

var detector = change.NewDetector()

// Difference returns the normalized luminance dissimilarity of two frames in [0, 1]
//
// Either frame being nil (no baseline) yields 1.0, so the first candidate is
// always novel. Frames that fail validation are treated like a missing frame.
func Difference(a, b *Frame) float64 {
	if a == nil || b == nil {
		return 1.0
	}
	imgA, err := a.Image()
	if err != nil {
		return 1.0
	}
	imgB, err := b.Image()
	if err != nil {
		return 1.0
	}
	return detector.Difference(imgA, imgB)
}

// Fingerprint returns a coarse content hash of the frame (md5 of a 32×32 thumbnail)
func Fingerprint(f *Frame) string {
	img, err := f.Image()
	if err != nil {
		return ""
	}
	return detector.Fingerprint(img)
}
