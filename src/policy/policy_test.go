package policy

import (
	"errors"
	"testing"
)

func TestIsAllowedExtension(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{name: "text", file: "a.txt", want: true},
		{name: "pdf", file: "b.pdf", want: true},
		{name: "c source", file: "c.c", want: true},
		{name: "zip", file: "d.zip", want: true},
		{name: "executable", file: "e.exe", want: false},
		{name: "no extension", file: "noext", want: false},
		{name: "case sensitive", file: "f.TXT", want: false},
		{name: "final suffix only", file: "g.txt.exe", want: false},
		{name: "double suffix allowed by last", file: "h.tar.zip", want: true},
		{name: "partial match", file: "i.txtx", want: false},
		{name: "trailing dot", file: "j.", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAllowedExtension(tc.file); got != tc.want {
				t.Fatalf("IsAllowedExtension(%q) = %v, want %v", tc.file, got, tc.want)
			}
		})
	}
}

func TestCustomFilter(t *testing.T) {
	f := NewFilter([]string{"md", ".go", " "})
	if !f.IsAllowedExtension("README.md") {
		t.Error("expected .md to be allowed once the dot is added")
	}
	if !f.IsAllowedExtension("main.go") {
		t.Error("expected .go to be allowed")
	}
	if f.IsAllowedExtension("a.txt") {
		t.Error("custom filter must not fall back to defaults")
	}
	if len(f.Extensions()) != 2 {
		t.Errorf("Extensions() = %v, want 2 entries", f.Extensions())
	}
}

func TestCheckName(t *testing.T) {
	f := NewFilter(nil)
	tests := []struct {
		name string
		file string
		want error
	}{
		{name: "plain basename", file: "report.txt", want: nil},
		{name: "relative path", file: "docs/report.txt", want: ErrPathSeparator},
		{name: "absolute path", file: "/etc/passwd.txt", want: ErrPathSeparator},
		{name: "traversal", file: "../secret.txt", want: ErrPathSeparator},
		{name: "empty", file: "", want: ErrEmptyName},
		{name: "dot dot", file: "..", want: ErrReservedName},
		{name: "blocked extension", file: "tool.exe", want: ErrExtension},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.CheckName(tc.file)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("CheckName(%q) = %v, want nil", tc.file, err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("CheckName(%q) = %v, want %v", tc.file, err, tc.want)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"report.txt":          "report.txt",
		"~/S1/docs/notes.pdf": "notes.pdf",
		"dir/":                "",
	}
	for in, want := range tests {
		if got := BaseName(in); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}
