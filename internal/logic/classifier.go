package logic

// Classify maps a vision code to its category.
// 1-3 are blue, 4-6 green, 7-9 metal; anything else (0 = no item) is NONE.
func Classify(code int) Category {
	switch {
	case code >= 1 && code <= 3:
		return CategoryBlue
	case code >= 4 && code <= 6:
		return CategoryGreen
	case code >= 7 && code <= 9:
		return CategoryMetal
	default:
		return CategoryNone
	}
}

// IsItem reports whether the code denotes an item on the belt.
func IsItem(code int) bool {
	return code >= 1 && code <= 9
}
