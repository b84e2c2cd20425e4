package analysis

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// MediaResolver turns chunk image references into image payloads read from
// the extraction's media directory.
type MediaResolver struct {
	dir       string
	maxImages int
	logger    *logger_i.Logger
}

func NewMediaResolver(dir string, maxImages int) *MediaResolver {
	return &MediaResolver{
		dir:       dir,
		maxImages: maxImages,
		logger:    logger_i.NewLogger("media"),
	}
}

// Load reads the referenced files that exist and are images. Missing or
// unreadable files are skipped with a warning; the text analysis still runs.
func (m *MediaResolver) Load(refs []string) []llm.Image {
	if m == nil || m.dir == "" || len(refs) == 0 {
		return nil
	}
	var images []llm.Image
	for _, ref := range refs {
		if m.maxImages > 0 && len(images) >= m.maxImages {
			m.logger.Debug("image limit reached", "limit", m.maxImages)
			break
		}
		path := m.locate(ref)
		if path == "" {
			m.logger.Warn("referenced media not found", "ref", ref)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Warn("cannot read media", "path", path, "error", err)
			continue
		}
		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		images = append(images, llm.Image{Name: filepath.Base(path), MimeType: mimeType, Data: data})
	}
	return images
}

// exports keep either the full extraction path or only the file name
func (m *MediaResolver) locate(ref string) string {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") {
		return ""
	}
	for _, candidate := range []string{filepath.Join(m.dir, clean), filepath.Join(m.dir, filepath.Base(clean))} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
