package flows

// PasswordReused reports whether plain matches the current hash or any history
// entry. The scan stops at the first match.
func PasswordReused(plain, current string, history []string, verify func(plain, hash string) (bool, error)) (bool, error) {
	if current != "" {
		ok, err := verify(plain, current)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	for _, h := range history {
		if h == "" {
			continue
		}
		ok, err := verify(plain, h)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AppendHistory appends hash and keeps only the newest limit entries.
// The input slice is never modified.
func AppendHistory(history []string, hash string, limit int) []string {
	next := make([]string, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, hash)
	if limit > 0 && len(next) > limit {
		next = next[len(next)-limit:]
	}
	return next
}
