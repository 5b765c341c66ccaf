package posts

import (
	"strconv"
	"strings"
	"time"

	"github.com/inkpost/inkpost-backend/internal/assets"
)

// TimeLayout is how created_at is stored. Fixed width keeps text order chronological.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Post is a published entry. Posts are never updated, only deleted.
type Post struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ImageFilename string    `json:"-"`
	ImageBase64   string    `json:"-"`
	ImageMimetype string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewPost is what the write path submits. Content is stored exactly as given.
type NewPost struct {
	Title   string
	Content string
	Image   *assets.Reference
}

// HasImage reports whether any image column is set
func (p Post) HasImage() bool {
	return p.ImageFilename != "" || p.ImageMimetype != ""
}

// ImageURL returns where the browser can fetch the post image, or ""
func (p Post) ImageURL() string {
	switch {
	case strings.HasPrefix(p.ImageFilename, "https://"), strings.HasPrefix(p.ImageFilename, "http://"):
		return p.ImageFilename
	case p.ImageFilename != "":
		return "/uploads/" + p.ImageFilename
	case p.ImageMimetype != "":
		return "/media/" + strconv.FormatInt(p.ID, 10)
	default:
		return ""
	}
}

// IsImage reports whether the attachment can be shown in an <img> tag
func (p Post) IsImage() bool {
	if p.ImageMimetype != "" {
		return strings.HasPrefix(p.ImageMimetype, "image/")
	}
	name := strings.ToLower(p.ImageFilename)
	return !strings.HasSuffix(name, ".pdf") && !strings.HasSuffix(name, ".txt")
}
