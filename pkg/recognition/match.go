package recognition

import "math"

// DefaultTolerance is the distance below which two descriptors are
// considered the same person.
const DefaultTolerance = 0.4

// EuclideanDistance calculates the Euclidean distance between two descriptors.
func EuclideanDistance(d1, d2 Descriptor) float64 {
	var sum float64
	for i := range d1 {
		diff := float64(d1[i] - d2[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// FindBestMatch finds the closest descriptor in the gallery.
// Returns the index of the best match, the distance, and whether it is
// within tolerance.
func FindBestMatch(probe Descriptor, gallery []Descriptor, tolerance float64) (int, float64, bool) {
	if len(gallery) == 0 {
		return -1, math.MaxFloat64, false
	}

	bestIdx := 0
	bestDist := math.MaxFloat64
	for i, d := range gallery {
		dist := EuclideanDistance(probe, d)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	return bestIdx, bestDist, bestDist < tolerance
}

// DescriptorFromFloats converts a wire descriptor into a Descriptor.
// It reports false when the input does not have exactly DescriptorLength values.
func DescriptorFromFloats(values []float64) (Descriptor, bool) {
	var d Descriptor
	if len(values) != DescriptorLength {
		return d, false
	}
	for i, v := range values {
		d[i] = float32(v)
	}
	return d, true
}

// Floats converts a descriptor into its wire form.
func Floats(d Descriptor) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}
