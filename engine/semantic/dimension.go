package semantic

// AdjustDimension pads or truncates an embedding to targetDim so stored
// and queried vectors are always comparable. Longer vectors lose their
// trailing components (no re-projection); shorter ones are right-padded
// with zeros; exact matches are returned unchanged.
func AdjustDimension(vec []float32, targetDim int) []float32 {
	switch {
	case len(vec) == targetDim:
		return vec
	case len(vec) > targetDim:
		return vec[:targetDim]
	default:
		out := make([]float32, targetDim)
		copy(out, vec)
		return out
	}
}
