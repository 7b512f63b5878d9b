package extract

import (
	"errors"
	"testing"
)

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"bare id with whitespace", "  dQw4w9WgXcQ ", "dQw4w9WgXcQ"},
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s&list=PL1", "dQw4w9WgXcQ"},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short url with query", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts url", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"live url", "https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"legacy v path", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"mobile host", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"music host", "https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVideoID(tt.input)
			if err != nil {
				t.Fatalf("ParseVideoID(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVideoID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseVideoIDInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "abc123"},
		{"too long", "dQw4w9WgXcQdQw4w9WgXcQ"},
		{"bad charset", "dQw4w9WgXc!"},
		{"wrong host", "https://vimeo.com/123456789"},
		{"watch without v", "https://www.youtube.com/watch?list=PL1"},
		{"channel path", "https://www.youtube.com/@somechannel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVideoID(tt.input)
			var invalid *InvalidVideoIDError
			if !errors.As(err, &invalid) {
				t.Fatalf("ParseVideoID(%q) err = %v, want InvalidVideoIDError", tt.input, err)
			}
			if invalid.Input != tt.input {
				t.Errorf("error input = %q, want %q", invalid.Input, tt.input)
			}
		})
	}
}
