package llm

// SplitWords splits a text delta at word boundaries, keeping each word's
// trailing whitespace attached, so downstream frames pace output at word
// granularity. Concatenating the pieces reproduces the input exactly.
func SplitWords(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !isSpace {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	out = append(out, s[start:])
	return out
}
