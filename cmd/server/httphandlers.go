package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"example.com/livefeed/internal/feed"
	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// --- HTTP Handlers ---

// signupHandler registers a user and returns a bearer token.
// Expects JSON body: {"name": "example"}
// Returns JSON response: {"message", "userId", "token"}
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Info("http/signup", "Invalid request body")
		writeError(w, http.StatusBadRequest, "Invalid request body.", nil)
		return
	}

	name := strings.TrimSpace(body.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > 50 {
		writeError(w, http.StatusUnprocessableEntity, "Validation failed, incorrect data entered.",
			[]feed.FieldError{{Field: "name", Message: "must be 1-50 characters"}})
		return
	}

	userID, err := s.store.CreateUser(r.Context(), name)
	if err != nil {
		logg.Error("http/signup", "Failed to create user", err)
		writeError(w, http.StatusInternalServerError, "An internal error occurred", nil)
		return
	}

	token, err := middleware.IssueToken(s.secret, userID)
	if err != nil {
		logg.Error("http/signup", "Failed to sign token", err)
		writeError(w, http.StatusInternalServerError, "An internal error occurred", nil)
		return
	}

	logg.Info("http/signup", "User created", logger.F("user_id", userID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created",
		"userId":  userID,
		"token":   token,
	})
}

// getPostsHandler returns one page of the feed.
// Query parameters: ?page=1
func (s *Server) getPostsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if q := r.URL.Query().Get("page"); q != "" {
		p, err := strconv.Atoi(q)
		if err != nil {
			p = 0
		}
		page = p
	}

	result, err := s.feed.GetPosts(r.Context(), page)
	if err != nil {
		handleServiceError(w, r, "http/posts", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Posts fetched",
		"posts":      result.Posts,
		"totalItems": result.TotalItems,
	})
}

// createPostHandler handles multipart post creation with fields title,
// content and the image file.
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	imagePath, ok := s.parseUpload(w, r, "http/post")
	if !ok {
		return
	}

	post, creator, err := s.feed.CreatePost(r.Context(), feed.CreateInput{
		Title:     r.FormValue("title"),
		Content:   r.FormValue("content"),
		ImagePath: imagePath,
	}, userID)
	if err != nil {
		if !feed.UploadKept(err) {
			s.discardUpload(imagePath)
		}
		handleServiceError(w, r, "http/post", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post created successfully",
		"post":    post,
		"creator": creator,
	})
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.feed.GetPost(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		handleServiceError(w, r, "http/post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post fetched",
		"post":    post,
	})
}

// updatePostHandler replaces a post. The image is either a new file in the
// "image" field or the existing URL sent as the "image" text field.
func (s *Server) updatePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	imagePath, ok := s.parseUpload(w, r, "http/post")
	if !ok {
		return
	}

	post, err := s.feed.EditPost(r.Context(), chi.URLParam(r, "postId"), feed.EditInput{
		Title:            r.FormValue("title"),
		Content:          r.FormValue("content"),
		NewImagePath:     imagePath,
		ExistingImageURL: r.FormValue("image"),
	}, userID)
	if err != nil {
		if !feed.UploadKept(err) {
			s.discardUpload(imagePath)
		}
		handleServiceError(w, r, "http/post", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post updated successfully",
		"post":    post,
	})
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if err := s.feed.DeletePost(r.Context(), chi.URLParam(r, "postId"), userID); err != nil {
		handleServiceError(w, r, "http/post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post deleted"})
}

// parseUpload parses the form body and stores the "image" file if one of an
// accepted type was sent. It writes the error response itself and reports
// false when the request cannot be handled.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request, module string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large.", nil)
			return "", false
		}
		logg.Info(module, "Malformed form body")
		writeError(w, http.StatusBadRequest, "Invalid request body.", nil)
		return "", false
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	imagePath, err := s.images.FromRequest(r, "image")
	if err != nil {
		logg.Error(module, "Failed to store upload", err)
		writeError(w, http.StatusInternalServerError, "An internal error occurred", nil)
		return "", false
	}
	return imagePath, true
}

// discardUpload removes an upload that no stored post references.
func (s *Server) discardUpload(path string) {
	if path == "" {
		return
	}
	if err := s.images.Delete(path); err != nil {
		logg.Warn("http/post", "Failed to remove orphaned upload", err, logger.F("path", path))
	}
}
