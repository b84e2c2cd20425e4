package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Loader turns an exported chat file into plain text. It does no OCR.
type Loader struct {
	pageTimeout time.Duration
	logger      *logger_i.Logger
}

func NewLoader() *Loader {
	return &Loader{
		pageTimeout: 10 * time.Second,
		logger:      logger_i.NewLogger("source"),
	}
}

func GetDocType(docPath string) analysisModel.DocType {
	switch strings.ToLower(filepath.Ext(docPath)) {
	case ".pdf":
		return analysisModel.PDF
	case ".docx", ".odt", ".rtf":
		return analysisModel.DOCX
	case ".txt", ".log", ".csv":
		return analysisModel.TXT
	default:
		return analysisModel.ERR
	}
}

// Load reads path. The document id is derived from the text, so loading the
// same export twice yields the same id and the same stored chunk set.
func (l *Loader) Load(path string) (analysisModel.Document, error) {
	docType := GetDocType(path)

	var (
		pages []rawPage
		err   error
	)
	switch docType {
	case analysisModel.PDF:
		pages, err = l.extractPDF(path)
	case analysisModel.DOCX:
		pages, err = extractDocument(path)
	case analysisModel.TXT:
		pages, err = extractPlain(path)
	default:
		return analysisModel.Document{}, fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
	if err != nil {
		return analysisModel.Document{}, err
	}

	text := joinPages(pages)
	l.logger.Info("document loaded", "path", path, "pages", len(pages), "bytes", len(text))
	return analysisModel.Document{
		Id:          DocumentId(text),
		Name:        filepath.Base(path),
		Path:        path,
		ContentType: docType,
		Text:        text,
		LoadedAt:    time.Now(),
	}, nil
}

func joinPages(pages []rawPage) string {
	var b strings.Builder
	for i, p := range pages {
		b.WriteString(p.Content)
		if i < len(pages)-1 && !strings.HasSuffix(p.Content, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func DocumentId(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "doc_" + hex.EncodeToString(sum[:8])
}
