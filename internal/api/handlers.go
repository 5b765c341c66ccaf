package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/assets"
	"github.com/inkpost/inkpost-backend/internal/posts"
	"github.com/inkpost/inkpost-backend/internal/session"
)

// multipartMemory is how much of a form is kept in memory before spilling to disk
const multipartMemory = 1 << 20

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	RecordLogin(ctx context.Context, success bool)
}

// PostService is the post repository as seen by the handlers
type PostService interface {
	List(ctx context.Context) []posts.Post
	Get(ctx context.Context, id int64) (*posts.Post, error)
	Create(ctx context.Context, np posts.NewPost) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// AssetAttacher turns an upload into an image reference, or nil
type AssetAttacher interface {
	Attach(ctx context.Context, upload *assets.Upload) *assets.Reference
}

// FileOpener serves files kept by the local asset strategy
type FileOpener interface {
	Open(name string) (*os.File, error)
}

type Options struct {
	MaxUploadBytes int64
	// ReadyTimeout bounds the backend ping in /readyz
	ReadyTimeout time.Duration
}

type Handler struct {
	posts     PostService
	assets    AssetAttacher
	files     FileOpener
	gate      *session.Gate
	pages     *renderer
	logger    *zap.SugaredLogger
	metrics   MetricsInterface
	maxUpload int64
	readyWait time.Duration
}

// NewHandler wires the handlers. files may be nil when uploads are not kept on local disk.
func NewHandler(
	postSvc PostService,
	attacher AssetAttacher,
	files FileOpener,
	gate *session.Gate,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
	opts Options,
) (*Handler, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	return &Handler{
		posts:     postSvc,
		assets:    attacher,
		files:     files,
		gate:      gate,
		pages:     pages,
		logger:    logger,
		metrics:   metrics,
		maxUpload: opts.MaxUploadBytes,
		readyWait: opts.ReadyTimeout,
	}, nil
}

// Index renders every post, newest first. It renders even when the backend is down.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageIndex, pageData{
		Title: "inkpost",
		Admin: h.admin(w, r),
		Posts: h.posts.List(r.Context()),
	})
}

func (h *Handler) ShowPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.lookupPost(r)
	if !ok {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	h.render(w, r, http.StatusOK, pagePost, pageData{
		Title: post.Title,
		Admin: h.admin(w, r),
		Post:  post,
	})
}

// Admin shows the composer to an authenticated session and the login form otherwise
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	if h.admin(w, r) {
		h.renderComposer(w, r, http.StatusOK, composeForm{}, "")
		return
	}
	h.renderLogin(w, r, http.StatusOK, "")
}

// AdminPost sends anonymous submissions to login and creates a post for an authenticated session
func (h *Handler) AdminPost(login http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.maxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		}

		if !h.gate.Authenticated(r) {
			login.ServeHTTP(w, r)
			return
		}
		h.gate.Touch(w, r)
		h.createPost(w, r)
	}
}

// Login checks the submitted admin password
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		if tooLarge(err) {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.renderLogin(w, r, http.StatusBadRequest, "Invalid form submission.")
		return
	}

	err := h.gate.Login(r.Context(), w, r.PostFormValue("password"))
	switch {
	case err == nil:
		h.metrics.RecordLogin(r.Context(), true)
		h.logger.Infow("Admin logged in", "remote_addr", r.RemoteAddr)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, session.ErrInvalidPassword):
		h.metrics.RecordLogin(r.Context(), false)
		h.logger.Warnw("Failed admin login", "remote_addr", r.RemoteAddr)
		h.renderLogin(w, r, http.StatusUnauthorized, "Incorrect password.")
	default:
		h.logger.Errorw("Login failed", "error", err)
		h.renderLogin(w, r, http.StatusServiceUnavailable, "Login is temporarily unavailable.")
	}
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if tooLarge(err) {
			h.logger.Warnw("Rejected oversized post", "limit", h.maxUpload, "content_length", r.ContentLength)
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warnw("Malformed post form", "error", err)
		h.renderComposer(w, r, http.StatusBadRequest, composeForm{}, "Invalid form submission.")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form := composeForm{
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
	}
	if strings.TrimSpace(form.Title) == "" || form.Content == "" {
		h.renderComposer(w, r, http.StatusBadRequest, form, "Title and content are required.")
		return
	}

	upload, err := h.readUpload(r)
	if err != nil {
		h.logger.Warnw("Ignoring unreadable upload", "error", err)
	}

	np := posts.NewPost{Title: form.Title, Content: form.Content}
	if upload != nil {
		np.Image = h.assets.Attach(r.Context(), upload)
	}

	if err := h.posts.Create(r.Context(), np); err != nil {
		h.logger.Errorw("Failed to save post", "request_id", middleware.GetReqID(r.Context()), "error", err)
		h.renderComposer(w, r, http.StatusInternalServerError, form, "Failed to save post")
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// readUpload returns the "image" file, or nil when none was sent or its extension is not accepted
func (h *Handler) readUpload(r *http.Request) (*assets.Upload, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, nil
	}
	if !assets.Allowed(header.Filename) {
		h.logger.Infow("Skipping upload with disallowed extension", "filename", header.Filename)
		return nil, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &assets.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// DeletePost runs behind the session gate. It always ends on the post list.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := h.posts.Delete(r.Context(), id); err != nil {
		h.logger.Errorw("Failed to delete post", "id", id, "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(r.Context(), w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Upload serves a file saved by the local asset strategy
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		http.NotFound(w, r)
		return
	}

	name := chi.URLParam(r, "name")
	f, err := h.files.Open(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, assets.ErrInvalidName) {
			h.logger.Errorw("Failed to open upload", "name", name, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Media serves an inline image from its post row
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	post, ok := h.lookupPost(r)
	if !ok || post.ImageBase64 == "" {
		http.NotFound(w, r)
		return
	}

	data, err := assets.Decode(post.ImageBase64)
	if err != nil {
		h.logger.Errorw("Corrupt inline image", "id", post.ID, "error", err)
		http.NotFound(w, r)
		return
	}

	mimetype := post.ImageMimetype
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", mimetype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListPostsJSON is the read-only JSON feed
func (h *Handler) ListPostsJSON(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, toPostListDTO(h.posts.List(r.Context())))
}

func (h *Handler) GetPostJSON(w http.ResponseWriter, r *http.Request) {
	post, ok := h.lookupPost(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "Post not found")
		return
	}
	h.writeJSON(w, http.StatusOK, toPostDTO(*post))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz reports whether the post backend answers a ping
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyWait)
	defer cancel()

	if err := h.posts.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable", Reasons: []string{err.Error()}})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthDTO{Status: "ready"})
}

// admin reports whether r is authenticated and keeps the browser cookie in step with the session
func (h *Handler) admin(w http.ResponseWriter, r *http.Request) bool {
	if !h.gate.Authenticated(r) {
		return false
	}
	h.gate.Touch(w, r)
	return true
}

// lookupPost resolves the {id} URL parameter. Malformed ids are treated as missing.
func (h *Handler) lookupPost(r *http.Request) (*posts.Post, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		return nil, false
	}
	return post, true
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.render(w, r, status, pageAdminLogin, pageData{Title: "Admin login", Error: msg})
}

func (h *Handler) renderComposer(w http.ResponseWriter, r *http.Request, status int, form composeForm, msg string) {
	h.render(w, r, status, pageAdmin, pageData{
		Title:  "New post",
		Admin:  true,
		Error:  msg,
		Form:   form,
		Accept: acceptedUploads,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if err := h.pages.render(w, status, page, data); err != nil {
		h.logger.Errorw("Failed to render page", "page", page, "request_id", middleware.GetReqID(r.Context()), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Infow("API error", "code", code, "message", message, "status", status)
	h.writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
