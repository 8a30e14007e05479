package must

// Must panics if err is non-nil and otherwise returns v. Use only for
// package-level values built from constants.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
