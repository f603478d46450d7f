package debug

// FirstDuplicate compares every unordered pair (i, j), i < j, and returns the
// first pair holding equal values. Only entries with valid[k] set take part;
// a nil valid slice includes every entry.
func FirstDuplicate[T comparable](ids []T, valid []bool) (i, j int, found bool) {
	include := func(k int) bool {
		return valid == nil || (k < len(valid) && valid[k])
	}
	for i = 0; i < len(ids); i++ {
		if !include(i) {
			continue
		}
		for j = i + 1; j < len(ids); j++ {
			if include(j) && ids[i] == ids[j] {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
