package api

import (
	"time"

	"github.com/inkpost/inkpost-backend/internal/posts"
)

type PostDTO struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PostListDTO struct {
	Posts []PostDTO `json:"posts"`
	Count int       `json:"count"`
}

type HealthDTO struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toPostDTO(p posts.Post) PostDTO {
	return PostDTO{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL(),
		CreatedAt: p.CreatedAt,
	}
}

func toPostListDTO(list []posts.Post) PostListDTO {
	dtos := make([]PostDTO, 0, len(list))
	for _, p := range list {
		dtos = append(dtos, toPostDTO(p))
	}
	return PostListDTO{Posts: dtos, Count: len(dtos)}
}
