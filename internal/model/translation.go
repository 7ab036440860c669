package model

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Defaults applied at the submission boundary.
const (
	DefaultFilename = "untitled"
	DefaultMimeType = "image/png"
)

var (
	ErrImageRequired        = errors.New("image is required")
	ErrEmptyBatch           = errors.New("images array is required")
	ErrInvalidImageEncoding = errors.New("image is not valid base64")
	ErrUnsupportedMimeType  = errors.New("mime type must be an image type")
)

// TranslationRecord is one completed transformation stored in history.
// Byte fields marshal to base64 in JSON.
type TranslationRecord struct {
	ID               int64     `json:"id"`
	OriginalImage    []byte    `json:"originalImage"`
	TranslatedImage  []byte    `json:"translatedImage"`
	OriginalFilename string    `json:"originalFilename"`
	FileSize         int64     `json:"fileSize"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TranslateRequest represents the request to translate a single image
type TranslateRequest struct {
	Image    string `json:"image" validate:"required"`
	Filename string `json:"filename" validate:"omitempty,max=255"`
	MimeType string `json:"mimeType" validate:"omitempty,startswith=image/"`
}

// BatchTranslateRequest represents the request to translate several images
type BatchTranslateRequest struct {
	Images []TranslateRequest `json:"images" validate:"required,min=1,dive"`
}

// BatchItem is one decoded unit of work.
type BatchItem struct {
	Image    []byte `json:"image"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

// Label returns the filename used for display and error prefixes.
func (i BatchItem) Label() string {
	if i.Filename == "" {
		return DefaultFilename
	}
	return i.Filename
}

// Mime returns the item's MIME type, defaulting to image/png.
func (i BatchItem) Mime() string {
	if i.MimeType == "" {
		return DefaultMimeType
	}
	return i.MimeType
}

// ToItem decodes the base64 payload. A data URL prefix is accepted.
func (r *TranslateRequest) ToItem() (BatchItem, error) {
	raw := strings.TrimSpace(r.Image)
	mimeType := r.MimeType

	if strings.HasPrefix(raw, "data:") {
		header, data, ok := strings.Cut(raw, ",")
		if !ok {
			return BatchItem{}, ErrInvalidImageEncoding
		}
		if mimeType == "" {
			mimeType, _, _ = strings.Cut(strings.TrimPrefix(header, "data:"), ";")
			if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
				return BatchItem{}, ErrUnsupportedMimeType
			}
		}
		raw = data
	}

	if raw == "" {
		return BatchItem{}, ErrImageRequired
	}

	image, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return BatchItem{}, ErrInvalidImageEncoding
	}
	if len(image) == 0 {
		return BatchItem{}, ErrImageRequired
	}

	return BatchItem{
		Image:    image,
		Filename: r.Filename,
		MimeType: mimeType,
	}, nil
}

// ToItems decodes every image in the batch, failing on the first bad one.
func (r *BatchTranslateRequest) ToItems() ([]BatchItem, error) {
	if len(r.Images) == 0 {
		return nil, ErrEmptyBatch
	}

	items := make([]BatchItem, 0, len(r.Images))
	for i := range r.Images {
		item, err := r.Images[i].ToItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// IsInputError reports whether err was caused by malformed submission input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrImageRequired) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrInvalidImageEncoding) ||
		errors.Is(err, ErrUnsupportedMimeType)
}
