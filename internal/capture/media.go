package capture

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ErrUnsupportedMedia is returned for inputs that are neither images nor videos.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// MediaType classifies an input file.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaImage
	MediaVideo
)

func (m MediaType) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// videoExtensions covers containers missing from minimal system MIME tables.
var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".avi": true,
	".mkv": true, ".webm": true, ".3gp": true,
}

// DetectMediaType classifies path by the MIME type of its extension.
func DetectMediaType(path string) MediaType {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return MediaUnknown
	}

	mimeType := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage
	case strings.HasPrefix(mimeType, "video/"), videoExtensions[ext]:
		return MediaVideo
	}
	return MediaUnknown
}

// LoadImage reads a still image as a BGR Mat.
// The caller is responsible for closing the returned Mat.
func LoadImage(path string) (*gocv.Mat, error) {
	if DetectMediaType(path) != MediaImage {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, path)
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode image %s", path)
	}

	return &mat, nil
}
