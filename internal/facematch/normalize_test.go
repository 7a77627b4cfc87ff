package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jana Nováková", "jana novakova"},
		{"jana-novakova", "jana novakova"},
		{"Jana_Nováková", "jana novakova"},
		{"  JANA   NOVÁKOVÁ ", "jana novakova"},
		{"J. Novák", "j novak"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizePersonName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCleanStudentName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jana_Nováková", "Jana Nováková"},
		{"  Petr   Svoboda ", "Petr Svoboda"},
		{"Anne-Marie_Dubois", "Anne-Marie Dubois"},
		{"__", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CleanStudentName(tt.input); got != tt.expected {
				t.Errorf("CleanStudentName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitStudentFolder(t *testing.T) {
	tests := []struct {
		folder string
		id     string
		name   string
		ok     bool
	}{
		{"s-101_Jana_Nováková", "s-101", "Jana Nováková", true},
		{"42_Petr", "42", "Petr", true},
		{"badname", "", "", false},
		{"_Jana", "", "", false},
		{"s-102_", "", "", false},
		{"s-103___", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			id, name, ok := SplitStudentFolder(tt.folder)
			if id != tt.id || name != tt.name || ok != tt.ok {
				t.Errorf("SplitStudentFolder(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.folder, id, name, ok, tt.id, tt.name, tt.ok)
			}
		})
	}
}
