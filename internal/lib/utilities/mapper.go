package utilities

// Map converts every element of slice with mapper. A nil slice maps to nil.
func Map[T any, R any](slice []T, mapper func(T) R) []R {
	if slice == nil {
		return nil
	}
	result := make([]R, len(slice))
	for i, v := range slice {
		result[i] = mapper(v)
	}
	return result
}
