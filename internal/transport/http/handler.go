package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"learner-progress-service/internal/app"
	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/progress"
	"learner-progress-service/internal/transport/qr"
)

// maxBodyBytes bounds request bodies; export files are the largest input.
const maxBodyBytes = 1 << 20

// Handler exposes ProgressService over JSON endpoints.
type Handler struct {
	service  *app.ProgressService
	renderer *qr.Renderer
	scanner  *qr.Scanner
	ws       *WSHandler
	log      *slog.Logger
}

func NewHandler(service *app.ProgressService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		service:  service,
		renderer: qr.NewRenderer(service.MaxPayload()),
		log:      logger,
	}
	h.scanner = qr.NewScanner(func(ctx context.Context, text string) error {
		_, err := service.RestoreBackup(ctx, text)
		return err
	}, logger)
	h.ws = NewWSHandler(service, logger)
	return h
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /progress", h.overview)
	mux.HandleFunc("GET /modules/{id}", h.module)
	mux.HandleFunc("POST /modules/{id}/advance", h.moduleAction(h.service.Advance))
	mux.HandleFunc("POST /modules/{id}/retreat", h.moduleAction(h.service.Retreat))
	mux.HandleFunc("POST /modules/{id}/reset", h.moduleAction(h.service.ResetModule))
	mux.HandleFunc("POST /modules/{id}/answers", h.answer)
	mux.HandleFunc("POST /modules/{id}/pretest", h.preTest)
	mux.HandleFunc("POST /modules/{id}/reflection", h.reflection)
	mux.HandleFunc("POST /modules/{id}/items", h.item)
	mux.HandleFunc("POST /modules/{id}/time", h.addTime)
	mux.HandleFunc("POST /modules/{id}/review", h.review)
	mux.HandleFunc("GET /reviews", h.reviews)
	mux.HandleFunc("POST /learner/read", h.markRead)
	mux.HandleFunc("POST /learner/favorites", h.toggleFavorite)
	mux.HandleFunc("PUT /learner/notes/{key}", h.setNote)
	mux.HandleFunc("POST /learner/placement", h.placement)
	mux.HandleFunc("GET /backup", h.backup)
	mux.HandleFunc("GET /backup/qr", h.backupQR)
	mux.HandleFunc("POST /backup/scan", h.startScan)
	mux.HandleFunc("POST /backup/scan/{id}", h.submitScan)
	mux.HandleFunc("DELETE /backup/scan/{id}", h.stopScan)
	mux.HandleFunc("POST /restore", h.restore)
	mux.HandleFunc("GET /export", h.exportFile)
	mux.HandleFunc("POST /import", h.importFile)
	mux.HandleFunc("GET /ws", h.ws.ServeWS)
	return mux
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.service.Overview(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) module(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Module(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) moduleAction(fn func(context.Context, string) (app.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r.Context(), r.PathValue("id"))
		h.writeResult(w, res, err)
	}
}

type answerRequest struct {
	Question int `json:"question"`
	Answer   int `json:"answer"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.AnswerPostTest(r.Context(), r.PathValue("id"), req.Question, req.Answer)
	h.writeResult(w, res, err)
}

type preTestRequest struct {
	Answers []int `json:"answers"`
}

func (h *Handler) preTest(w http.ResponseWriter, r *http.Request) {
	var req preTestRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.RecordPreTest(r.Context(), r.PathValue("id"), req.Answers)
	h.writeResult(w, res, err)
}

type reflectionRequest struct {
	Responses domain.ReflectionResponses `json:"responses"`
}

func (h *Handler) reflection(w http.ResponseWriter, r *http.Request) {
	var req reflectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SaveReflection(r.Context(), r.PathValue("id"), req.Responses)
	h.writeResult(w, res, err)
}

type itemRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (h *Handler) item(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	var fn func(context.Context, string, string) (app.Result, error)
	switch req.Kind {
	case "section":
		fn = h.service.MarkSectionRead
	case "joke":
		fn = h.service.AnalyzeJoke
	case "activity":
		fn = h.service.CompleteActivity
	default:
		h.writeError(w, errors.Wrapf(domain.ErrInvalidInput, "item kind %q", req.Kind))
		return
	}
	res, err := fn(r.Context(), r.PathValue("id"), req.ID)
	h.writeResult(w, res, err)
}

type timeRequest struct {
	Seconds int `json:"seconds"`
}

func (h *Handler) addTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.AddTime(r.Context(), r.PathValue("id"), req.Seconds)
	h.writeResult(w, res, err)
}

type reviewRequest struct {
	Action string `json:"action"`
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	var (
		res app.Result
		err error
	)
	switch req.Action {
	case "complete":
		res, err = h.service.CompleteReview(r.Context(), r.PathValue("id"))
	case "dismiss":
		res, err = h.service.DismissReview(r.Context(), r.PathValue("id"))
	default:
		err = errors.Wrapf(domain.ErrInvalidInput, "review action %q", req.Action)
	}
	h.writeResult(w, res, err)
}

func (h *Handler) reviews(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.DueReviews(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []progress.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type idRequest struct {
	ID string `json:"id"`
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.MarkRead(r.Context(), req.ID)
	h.writeUserResult(w, res, err)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.ToggleFavorite(r.Context(), req.ID)
	h.writeUserResult(w, res, err)
}

type noteRequest struct {
	Text string `json:"text"`
}

func (h *Handler) setNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SetNote(r.Context(), r.PathValue("key"), req.Text)
	h.writeUserResult(w, res, err)
}

type placementRequest struct {
	Score       int    `json:"score"`
	Recommended string `json:"recommendedModule"`
}

func (h *Handler) placement(w http.ResponseWriter, r *http.Request) {
	var req placementRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SetPlacement(r.Context(), req.Score, req.Recommended)
	h.writeUserResult(w, res, err)
}

func (h *Handler) backup(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.ExportBackup(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

func (h *Handler) backupQR(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.ExportBackup(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	png, err := h.renderer.PNG(text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *Handler) startScan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.scanner.Start())
}

func (h *Handler) submitScan(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if err := h.scanner.Submit(r.Context(), r.PathValue("id"), text); err != nil {
		h.writeError(w, err)
		return
	}
	h.overview(w, r)
}

func (h *Handler) stopScan(w http.ResponseWriter, r *http.Request) {
	if !h.scanner.Stop(r.PathValue("id")) {
		h.writeError(w, qr.ErrNoActiveScan)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.RestoreBackup(r.Context(), text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) exportFile(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.ExportFile(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="learner-progress.json"`)
	w.Write(data)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.ImportFile(r.Context(), []byte(text))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, errors.Wrap(domain.ErrInvalidInput, err.Error()))
		return false
	}
	return true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, errors.Wrap(domain.ErrInvalidInput, err.Error()))
		return "", false
	}
	return string(body), true
}

func (h *Handler) writeResult(w http.ResponseWriter, res app.Result, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeUserResult(w http.ResponseWriter, res app.UserResult, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorPayload struct {
	Message  string `json:"message"`
	Overage  int    `json:"overage,omitempty"`
	MaxBytes int    `json:"maxBytes,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	payload := errorPayload{Message: err.Error()}
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		payload.Overage = capErr.Overage()
		payload.MaxBytes = capErr.Limit
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, payload)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var decodeErr *domain.DecodeError
	switch {
	case errors.Is(err, domain.ErrModuleNotFound), errors.Is(err, qr.ErrNoActiveScan):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrModuleLocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedFile),
		errors.Is(err, domain.ErrInvalidJSON), errors.As(err, &decodeErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
