package util

// Must returns the value returned by a constructor, panicking if it
// failed. Only use this for constructors that can only fail if their
// arguments violate invariants established by the caller, such as
// ciphers created with keys of a fixed size.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
