package server

import (
	"errors"
	"mime/multipart"
	"net/http"

	"audioportal/core/portal"
	"audioportal/logger"
	"audioportal/model"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// formOverhead leaves room for the non-file form fields and multipart framing.
const formOverhead = 1 << 20

type uploadResponse struct {
	Message string             `json:"message"`
	Audio   *model.AudioRecord `json:"audio"`
}

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
}

// parseForm reads a multipart (or urlencoded) body of at most limit bytes.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &portal.Error{Kind: portal.ErrInvalidInput, Op: "parse form", Err: errors.New("request body too large")}
		}
		return &portal.Error{Kind: portal.ErrInvalidInput, Op: "parse form", Err: err}
	}
	return nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

// formFile returns the named file part, or nil when the field is absent.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	return file, header, err
}

// UploadAudioHandler handles POST /upload with the audio in the "audio" field.
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("Upload route accessed",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if err := parseForm(w, r, h.svc.MaxUploadSize()+formOverhead); err != nil {
		writeError(w, err, "Error uploading audio", nil)
		return
	}
	defer cleanupForm(r)

	in := portal.UploadInput{}
	file, header, err := formFile(r, "audio")
	if err != nil {
		writeError(w, &portal.Error{Kind: portal.ErrInvalidInput, Op: "upload", Err: err}, "", nil)
		return
	}
	if file != nil {
		defer file.Close()
		in.Filename = header.Filename
		in.ContentType = header.Header.Get("Content-Type")
		in.Body = file
	}

	record, err := h.svc.Upload(r.Context(), in)
	if err != nil {
		// A failed transcription still leaves a stored record; return it.
		writeError(w, err, "Error uploading audio", record)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Message: "Audio uploaded and transcribed successfully",
		Audio:   record,
	})
}

// SaveMetadataHandler handles POST /metadata/{id}.
func (h *APIHandler) SaveMetadataHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := parseForm(w, r, h.svc.MaxUploadSize()+formOverhead); err != nil {
		writeError(w, err, "Error saving metadata", nil)
		return
	}
	defer cleanupForm(r)

	in := portal.MetadataInput{
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		Lyrics:         r.FormValue("lyrics"),
		Tags:           r.FormValue("tags"),
		Category:       r.FormValue("category"),
		AgeRestriction: r.FormValue("ageRestriction"),
	}
	file, header, err := formFile(r, "albumArt")
	if err != nil {
		writeError(w, &portal.Error{Kind: portal.ErrInvalidInput, Op: "submit metadata", Err: err}, "", nil)
		return
	}
	if file != nil {
		defer file.Close()
		in.AlbumArt = &portal.FileInput{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		}
	}

	record, err := h.svc.SubmitMetadata(r.Context(), id, in)
	if err != nil {
		writeError(w, err, "Error saving metadata", nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListAudiosHandler handles GET /audios.
func (h *APIHandler) ListAudiosHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListRecords(r.Context())
	if err != nil {
		writeError(w, err, "Error fetching audios", nil)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *APIHandler) GetAudioHandler(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.GetRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Error fetching audio", nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *APIHandler) GetTranscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logger.Debug("Transcription request received", logger.String("id", id))

	text, err := h.svc.GetTranscription(r.Context(), id)
	if err != nil {
		writeError(w, err, "Error fetching transcription", nil)
		return
	}
	writeJSON(w, http.StatusOK, transcriptionResponse{Transcription: text})
}

// RetryTranscriptionHandler handles POST /audio/{id}/transcription/retry.
func (h *APIHandler) RetryTranscriptionHandler(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.RetryTranscription(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Error transcribing audio", record)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
