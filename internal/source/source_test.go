package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
)

func TestGetDocType(t *testing.T) {
	tests := []struct {
		path     string
		expected analysisModel.DocType
	}{
		{"test.pdf", analysisModel.PDF},
		{"DOC.DOCX", analysisModel.DOCX},
		{"notes.txt", analysisModel.TXT},
		{"image.png", analysisModel.ERR},
	}

	for _, tt := range tests {
		if got := GetDocType(tt.path); got != tt.expected {
			t.Errorf("GetDocType(%s) = %v; want %v", tt.path, got, tt.expected)
		}
	}
}

func TestLoad_PlainTextKeepsBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.txt")
	body := "12/03/2023, 10:00 - A: ciao\r\n12/03/2023, 10:01 - B: ciao\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Text != body {
		t.Errorf("text mismatch: %q", doc.Text)
	}
	if doc.Id != DocumentId(body) || doc.Name != "chat.txt" {
		t.Errorf("metadata mismatch: %+v", doc)
	}
}

func TestLoad_Unsupported(t *testing.T) {
	if _, err := NewLoader().Load("photo.png"); err == nil {
		t.Error("expected an error for unsupported type")
	}
}

func TestJoinPages(t *testing.T) {
	got := joinPages([]rawPage{{1, "one"}, {2, "two\n"}, {3, "three"}})
	if got != "one\ntwo\nthree" {
		t.Errorf("joinPages = %q", got)
	}
}
