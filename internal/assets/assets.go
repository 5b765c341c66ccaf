package assets

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Strategy names where uploaded images are kept
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyInline Strategy = "inline"
	StrategyBucket Strategy = "bucket"
)

var (
	ErrStoreFailure        = errors.New("asset store failure")
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrInvalidName         = errors.New("invalid asset name")
)

// allowedExtensions is matched case-insensitively against the final suffix
var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"bmp":  {},
	"webp": {},
	"pdf":  {},
	"txt":  {},
}

var (
	extensionPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
	namePattern      = regexp.MustCompile(`^[0-9a-f]{32}(\.[a-z0-9]{1,10})?$`)
)

// Upload is one file taken from a multipart form
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Reference says where a saved upload can be found. Which fields are set depends on the strategy.
type Reference struct {
	Filename string
	Base64   string
	MimeType string
	URL      string
}

// Store persists an upload and returns a reference to it
type Store interface {
	Strategy() Strategy
	Save(ctx context.Context, upload Upload) (*Reference, error)
}

// Allowed reports whether filename ends in an accepted extension
func Allowed(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

// Extensions lists the accepted extensions in sorted order
func Extensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// GenerateName returns a random name that keeps only the extension of original
func GenerateName(original string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" || !extensionPattern.MatchString(ext) {
		return name
	}
	return name + "." + strings.ToLower(ext)
}

// ValidName reports whether name could have come from GenerateName
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
