package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/inkpost/inkpost-backend/internal/assets"
	"github.com/inkpost/inkpost-backend/internal/posts"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageIndex      = "index.html"
	pagePost       = "post.html"
	pageAdmin      = "admin.html"
	pageAdminLogin = "admin_login.html"
)

// acceptedUploads feeds the file input accept attribute
var acceptedUploads = "." + strings.Join(assets.Extensions(), ",.")

type composeForm struct {
	Title   string
	Content string
}

type pageData struct {
	Title  string
	Admin  bool
	Posts  []posts.Post
	Post   *posts.Post
	Error  string
	Form   composeForm
	Accept string
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageIndex, pagePost, pageAdmin, pageAdminLogin} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// render executes page into a buffer so a template error never leaves a half-written response
func (r *renderer) render(w http.ResponseWriter, status int, page string, data pageData) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
