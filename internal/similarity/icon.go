package similarity

import (
	"fmt"
	"image"
	"math"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
)

// pHash produces a 64-bit hash, so 64 is the maximum hamming distance.
const phashBits = 64

// HashImage computes the perceptual hash of an icon in its serialized
// string form ("p:<hex>"), suitable for storage and later comparison.
func HashImage(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	return hash.ToString(), nil
}

// HashImageFile decodes an icon file and computes its perceptual hash.
func HashImageFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return HashImage(img)
}

// IconRisk compares two serialized perceptual hashes and returns a
// similarity percentage in [0.0, 100.0], rounded to two decimals. 100 means
// identical hashes (hamming distance 0). An empty hash on either side means
// the signal is unavailable and scores 0.
func IconRisk(candidateHash, referenceHash string) (float64, error) {
	if candidateHash == "" || referenceHash == "" {
		return 0.0, nil
	}

	h1, err := goimagehash.ImageHashFromString(candidateHash)
	if err != nil {
		return 0.0, fmt.Errorf("invalid candidate hash: %w", err)
	}
	h2, err := goimagehash.ImageHashFromString(referenceHash)
	if err != nil {
		return 0.0, fmt.Errorf("invalid reference hash: %w", err)
	}

	dist, err := h1.Distance(h2)
	if err != nil {
		return 0.0, fmt.Errorf("failed to compute hash distance: %w", err)
	}

	sim := 1.0 - float64(dist)/float64(phashBits)
	if sim < 0 {
		sim = 0
	}
	return math.Round(sim*100.0*100) / 100, nil
}
