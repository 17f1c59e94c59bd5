package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// DefaultBodyLimit ограничивает тело загрузки, если лимит не задан в конфиге
const DefaultBodyLimit = 20 << 20

// Handler обслуживает API дашборда для арендатора из TenantMiddleware
type Handler struct {
	Store     StorageInterface
	Dashboard DashboardService
	Importer  Importer
	Log       logrus.FieldLogger
	BodyLimit int64
}

func NewHandler(store StorageInterface, dashboard DashboardService, importer Importer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:     store,
		Dashboard: dashboard,
		Importer:  importer,
		Log:       log,
		BodyLimit: DefaultBodyLimit,
	}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
