package extract

// extractJSON carves the first JSON object out of a response that might wrap
// it in markdown fences or surrounding prose.
func extractJSON(text string) string {
	start := findJSONStart(text)
	if start < 0 {
		return ""
	}

	end := len(text)
	if idx := findJSONEnd(text, start); idx >= 0 {
		end = idx + 1
	}

	return text[start:end]
}

func findJSONStart(text string) int {
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			return i
		}
	}
	return -1
}

func findJSONEnd(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
