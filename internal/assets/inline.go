package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// InlineStore keeps the payload in the post row as base64
type InlineStore struct{}

func NewInlineStore() *InlineStore {
	return &InlineStore{}
}

func (s *InlineStore) Strategy() Strategy {
	return StrategyInline
}

func (s *InlineStore) Save(ctx context.Context, upload Upload) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	return &Reference{
		Base64:   base64.StdEncoding.EncodeToString(upload.Data),
		MimeType: contentType(upload),
	}, nil
}

// Decode returns the raw bytes of an inline payload
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode inline asset: %w", err)
	}
	return data, nil
}

// contentType prefers the declared type and falls back to sniffing the payload
func contentType(upload Upload) string {
	if declared := strings.TrimSpace(upload.ContentType); declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return declared
		}
	}
	return http.DetectContentType(upload.Data)
}
