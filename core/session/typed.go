package session

// Get decodes the value stored under key into T.
// A missing key or a value that does not decode into T yields false.
func Get[T any](s *Session, key string) (T, bool) {
	raw, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return decodeValue[T](raw)
}

// Set stores value under key and returns the previous value decoded into T.
// Encoding failures are returned; nothing is stored in that case.
func Set[T any](s *Session, key string, value T) (T, bool, error) {
	prev, ok, err := s.Set(key, value)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	v, ok := decodeValue[T](prev)
	return v, ok, nil
}

// Remove deletes key and returns the removed value decoded into T.
func Remove[T any](s *Session, key string) (T, bool) {
	raw, ok := s.Remove(key)
	if !ok {
		var zero T
		return zero, false
	}
	return decodeValue[T](raw)
}
