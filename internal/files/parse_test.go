package files

import (
	"strings"
	"testing"
)

func TestParseText(t *testing.T) {
	got, err := Parse("notes.txt", []byte("plain text content"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "plain text content" {
		t.Errorf("Parse = %q", got)
	}
}

func TestParseMarkdown(t *testing.T) {
	got, err := Parse("README.md", []byte("# Heading\n\nBody"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "Heading") {
		t.Errorf("Parse = %q", got)
	}
}

func TestParseCSV(t *testing.T) {
	csv := "name,price\nSourdough 101,R2500\nPastry Basics,R1800\n"
	got, err := Parse("courses.csv", []byte(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "name, price\nSourdough 101, R2500\nPastry Basics, R1800"
	if got != want {
		t.Errorf("Parse = %q, want %q", got, want)
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	csv := "a,b,c\nd,e\n"
	if _, err := Parse("data.csv", []byte(csv)); err != nil {
		t.Fatalf("ragged csv should parse: %v", err)
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, err := Parse("video.mp4", []byte{0x00})
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if !strings.Contains(err.Error(), ".txt") {
		t.Errorf("error should list supported types: %v", err)
	}
}

func TestParseCorruptPDF(t *testing.T) {
	if _, err := Parse("broken.pdf", []byte("not a pdf")); err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
}

func TestParseCorruptDOCX(t *testing.T) {
	if _, err := Parse("broken.docx", []byte("not a zip")); err == nil {
		t.Fatal("expected error for corrupt docx")
	}
}

func TestParseCorruptXLSX(t *testing.T) {
	if _, err := Parse("broken.xlsx", []byte("not a zip")); err == nil {
		t.Fatal("expected error for corrupt xlsx")
	}
}
