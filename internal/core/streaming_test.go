package core

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ascii passthrough", "a,b,c\n1,2,3\n", "a,b,c\n1,2,3\n"},
		{"valid multibyte", "名前,ville\nÅse,Zürich\n", "名前,ville\nÅse,Zürich\n"},
		{"invalid byte replaced", "a\xffb", "a�b"},
		{"truncated sequence at eof", "ok\xe6\x97", "ok��"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("sanitized = %q, want %q", got, tt.want)
			}
		})
	}
}

// One-byte reads split every multi-byte rune; none may be replaced.
func TestUTF8Sanitizer_SplitRunes(t *testing.T) {
	input := "Ærø;日本語;🙂\n"
	got, err := io.ReadAll(newUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input))))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != input {
		t.Errorf("sanitized = %q, want %q", got, input)
	}
}

func TestUTF8Sanitizer_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("abc"), iotest.ErrReader(boom))
	got, err := io.ReadAll(newUTF8Sanitizer(r))
	if !errors.Is(err, boom) {
		t.Errorf("ReadAll() error = %v, want boom", err)
	}
	if string(got) != "abc" {
		t.Errorf("data before error = %q, want %q", got, "abc")
	}
}

func TestCountingReader_Limit(t *testing.T) {
	c := &countingReader{r: strings.NewReader("0123456789"), limit: 5}
	_, err := io.ReadAll(c)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("ReadAll() error = %v, want ErrFileTooLarge", err)
	}

	c = &countingReader{r: strings.NewReader("01234"), limit: 5}
	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll(at limit) error = %v", err)
	}
	if c.n != 5 || string(got) != "01234" {
		t.Errorf("read %d bytes %q, want 5 bytes %q", c.n, got, "01234")
	}
}

func TestNewUploadReader_SkipsBOM(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"with bom", "\xEF\xBB\xBFa,b\n1,2\n", "a,b\n1,2\n"},
		{"without bom", "a,b\n1,2\n", "a,b\n1,2\n"},
		{"shorter than bom", "a", "a"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := newUploadReader(strings.NewReader(tt.input), 0, 64)
			if err != nil {
				t.Fatalf("newUploadReader() error = %v", err)
			}
			got, err := io.ReadAll(u)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("read %q, want %q", got, tt.want)
			}
			if u.BytesRead() != int64(len(tt.input)) {
				t.Errorf("BytesRead() = %d, want %d", u.BytesRead(), len(tt.input))
			}
		})
	}
}
