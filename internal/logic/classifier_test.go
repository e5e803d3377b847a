package logic

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want Category
	}{
		{-1, CategoryNone},
		{0, CategoryNone},
		{1, CategoryBlue},
		{2, CategoryBlue},
		{3, CategoryBlue},
		{4, CategoryGreen},
		{5, CategoryGreen},
		{6, CategoryGreen},
		{7, CategoryMetal},
		{8, CategoryMetal},
		{9, CategoryMetal},
		{10, CategoryNone},
		{65535, CategoryNone},
	}

	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%d): got %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestIsItem(t *testing.T) {
	for code := -2; code <= 12; code++ {
		want := code >= 1 && code <= 9
		if got := IsItem(code); got != want {
			t.Errorf("IsItem(%d): got %v, want %v", code, got, want)
		}
		// IsItem and Classify must agree
		if IsItem(code) != (Classify(code) != CategoryNone) {
			t.Errorf("IsItem(%d) disagrees with Classify", code)
		}
	}
}
