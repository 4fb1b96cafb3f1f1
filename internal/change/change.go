// Package change measures how different two images are.
//
// Both images are reduced to single-channel luminance and resampled to a
// fixed canonical size before comparison, so the score does not depend on the
// source resolution.
package change

import (
	"crypto/md5"
	"encoding/hex"
	"image"

	"github.com/disintegration/gift"
)

const (
	// CanonicalWidth is the width every image is resampled to before comparison
	CanonicalWidth = 256
	// CanonicalHeight is the height every image is resampled to before comparison
	CanonicalHeight = 256

	// fingerprintSize is the edge of the thumbnail hashed by Fingerprint
	fingerprintSize = 32

	maxLuma = 255.0
)

// Detector compares images at a fixed canonical resolution
type Detector struct {
	canon       *gift.GIFT
	fingerprint *gift.GIFT
}

// NewDetector creates a detector using luminance (BT.601) and bilinear resampling
func NewDetector() *Detector {
	canon := gift.New(
		gift.Grayscale(),
		gift.Resize(CanonicalWidth, CanonicalHeight, gift.LinearResampling),
	)
	// Results must not depend on goroutine scheduling.
	canon.SetParallelization(false)

	fp := gift.New(gift.Resize(fingerprintSize, fingerprintSize, gift.BoxResampling))
	fp.SetParallelization(false)

	return &Detector{canon: canon, fingerprint: fp}
}

// Canonicalize converts img to a CanonicalWidth × CanonicalHeight luminance image
func (d *Detector) Canonicalize(img image.Image) *image.Gray {
	dst := image.NewGray(d.canon.Bounds(img.Bounds()))
	d.canon.Draw(dst, img)
	return dst
}

// Difference returns the normalized mean absolute luminance difference in [0, 1]
//
// A nil image on either side means "no baseline" and yields 1.0.
func (d *Detector) Difference(a, b image.Image) float64 {
	if a == nil || b == nil {
		return 1.0
	}
	return MeanAbsDiff(d.Canonicalize(a), d.Canonicalize(b))
}

// MeanAbsDiff returns mean(|a-b|)/255 for two equally sized gray images
//
// Images of different sizes are compared over their common top-left area.
func MeanAbsDiff(a, b *image.Gray) float64 {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	if w == 0 || h == 0 {
		return 1.0
	}

	var sum uint64
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			if rowA[x] > rowB[x] {
				sum += uint64(rowA[x] - rowB[x])
			} else {
				sum += uint64(rowB[x] - rowA[x])
			}
		}
	}

	mean := float64(sum) / float64(w*h)
	return mean / maxLuma
}

// Fingerprint returns the md5 of a 32×32 downsample of img
func (d *Detector) Fingerprint(img image.Image) string {
	dst := image.NewRGBA(d.fingerprint.Bounds(img.Bounds()))
	d.fingerprint.Draw(dst, img)
	sum := md5.Sum(dst.Pix)
	return hex.EncodeToString(sum[:])
}
