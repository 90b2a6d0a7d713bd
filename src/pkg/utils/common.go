package utils

// Must panics if err is non-nil, otherwise returns v. Used at startup for
// initialization that has no reasonable recovery path (e.g. logger
// construction).
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}
