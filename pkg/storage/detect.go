package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"catbot/pkg/models"
)

// headerSize is enough for every matcher filetype ships
const headerSize = 262

// Kind describes a file's sniffed content type
type Kind struct {
	Type      models.MediaType
	Extension string
	MIME      string
}

var allowedKinds = map[string]models.MediaType{
	"jpg": models.MediaTypeImage,
	"png": models.MediaTypeImage,
	"mp4": models.MediaTypeVideo,
	"mov": models.MediaTypeVideo,
}

// DetectBytes sniffs the content type from the first bytes of a file
func DetectBytes(header []byte) (Kind, error) {
	fileType, err := filetype.Match(header)
	if err != nil || fileType == types.Unknown {
		return Kind{}, fmt.Errorf("unrecognized file type")
	}

	mediaType, ok := allowedKinds[fileType.Extension]
	if !ok {
		return Kind{}, fmt.Errorf("file type %s is not allowed", fileType.Extension)
	}

	return Kind{
		Type:      mediaType,
		Extension: fileType.Extension,
		MIME:      fileType.MIME.Value,
	}, nil
}

// Detect sniffs the content type of the file at path
func Detect(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return Kind{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Kind{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DetectBytes(header[:n])
}
