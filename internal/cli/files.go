package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"

	"github.com/imgtranslate/api/internal/model"
)

// loadItems reads each file and detects its MIME type from content.
// Files that are not images or exceed maxSize are rejected up front.
func loadItems(paths []string, maxSize int64) ([]model.BatchItem, error) {
	items := make([]model.BatchItem, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s: is a directory", path)
		}
		if maxSize > 0 && info.Size() > maxSize {
			return nil, fmt.Errorf("%s: %s exceeds the %s limit",
				path, units.HumanSize(float64(info.Size())), units.HumanSize(float64(maxSize)))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s: %w", path, model.ErrImageRequired)
		}

		mime := mimetype.Detect(data)
		if !strings.HasPrefix(mime.String(), "image/") {
			return nil, fmt.Errorf("%s: not an image (%s)", path, mime.String())
		}

		items = append(items, model.BatchItem{
			Image:    data,
			Filename: filepath.Base(path),
			MimeType: mime.String(),
		})
	}
	return items, nil
}

// outputPath names the translated copy of rec inside dir, taking the
// extension from the translated bytes. Names already in taken get the
// record id appended so inputs sharing a basename do not overwrite
// each other.
func outputPath(dir string, rec model.TranslationRecord, taken map[string]bool) string {
	base := strings.TrimSuffix(rec.OriginalFilename, filepath.Ext(rec.OriginalFilename))
	ext := mimetype.Detect(rec.TranslatedImage).Extension()
	if ext == "" {
		ext = filepath.Ext(rec.OriginalFilename)
	}

	path := filepath.Join(dir, base+".translated"+ext)
	if taken[path] {
		path = filepath.Join(dir, fmt.Sprintf("%s.%d.translated%s", base, rec.ID, ext))
	}
	taken[path] = true
	return path
}
