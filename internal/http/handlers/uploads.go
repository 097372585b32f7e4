package handlers

import (
	"errors"
	"io"
	"net/http"

	"propvid/internal/domain"
	"propvid/internal/storage"
)

// uploadFormOverhead is the allowance for multipart boundaries and form
// fields on top of the image payload itself.
const uploadFormOverhead = 64 << 10

// UploadImage accepts a multipart form with an "image" field and stores it
// for the caller. Validation happens before anything touches the store.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	// Cap the whole body at the transport so an oversized upload fails
	// before it spools to disk; the slack covers multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+uploadFormOverhead)
	if err := r.ParseMultipartForm(storage.MaxUploadBytes + 1); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "file size must be less than 5MB")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}

	stored, err := a.Uploader.UploadImage(r.Context(), storage.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, userID)
	if err != nil {
		if domain.KindOf(err) == domain.KindValidation {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("image upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}

	a.json(w, http.StatusCreated, map[string]string{
		"path": stored.Path,
		"url":  stored.URL,
	})
}
