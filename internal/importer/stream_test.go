package importer

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("sku,name,price")...),
			expected: "sku,name,price",
		},
		{
			name:     "file without BOM",
			input:    []byte("sku,name,price"),
			expected: "sku,name,price",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "shorter than BOM",
			input:    []byte{0xEF, 0xBB},
			expected: string([]byte{0xEF, 0xBB}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(&bomReader{r: bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8Reader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "valid multibyte UTF-8",
			input:    []byte("héllo,wörld"),
			expected: "héllo,wörld",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "truncated rune at end",
			input:    []byte{'a', 'b', 0xC3},
			expected: "ab?",
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "all invalid bytes",
			input:    []byte{0xFF, 0xFE, 0xFD},
			expected: "???",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(&utf8Reader{r: bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

// slowReader yields one byte per Read call, forcing multi-byte runes to be
// split across reads.
type slowReader struct {
	data []byte
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	p[0] = s.data[0]
	s.data = s.data[1:]
	return 1, nil
}

func TestUTF8ReaderRuneSplitAcrossReads(t *testing.T) {
	input := []byte("prix: 9€99")
	result, err := io.ReadAll(&utf8Reader{r: &slowReader{data: input}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "prix: 9€99" {
		t.Errorf("got %q, want %q", string(result), "prix: 9€99")
	}
}

func TestSanitizedReader(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("sku,name\nab")...)
	input = append(input, 0x80)
	input = append(input, []byte("c,thing")...)

	result, err := io.ReadAll(sanitizedReader(bytes.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "sku,name\nab?c,thing"
	if string(result) != want {
		t.Errorf("got %q, want %q", string(result), want)
	}
	if strings.ContainsRune(string(result), 0xFEFF) {
		t.Error("BOM survived sanitization")
	}
}
