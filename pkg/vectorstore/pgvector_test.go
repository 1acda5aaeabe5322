package vectorstore

import "testing"

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "run_sources", true},
		{"Valid with underscore", "run_a1b2c3", true},
		{"Valid short", "a", true},
		{"Invalid start with number", "1sources", false},
		{"Invalid hyphen", "run-sources", false},
		{"Invalid space", "run sources", false},
		{"Invalid SQL injection", "sources; DROP TABLE memory_chunks", false},
		{"Invalid empty", "", false},
		{"Invalid uppercase start", "Sources", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTableName(tt.input); got != tt.expected {
				t.Errorf("isValidTableName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
