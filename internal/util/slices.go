package util

// Map returns the result of f for every element of in, in order. A nil input
// yields an empty, non-nil slice so JSON encodes it as [].
func Map[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
