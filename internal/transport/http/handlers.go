// Package httptransport is the thin HTTP layer. It delegates to the scan
// and sync services without embedding business logic so transport concerns
// remain isolated.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"certpass/internal/platform/middleware"
	"certpass/internal/rules/ports"
	"certpass/internal/scanner"
	"certpass/pkg/dgcerrors"
)

// Checker runs one certificate check.
type Checker interface {
	Check(ctx context.Context, qr string) (scanner.Result, error)
}

// SyncJob triggers one data refresh on demand.
type SyncJob func(ctx context.Context) error

type Handler struct {
	checker Checker
	jobs    map[string]SyncJob
	updates ports.UpdateStore
	logger  *slog.Logger
}

func New(checker Checker, jobs map[string]SyncJob, updates ports.UpdateStore, logger *slog.Logger) *Handler {
	return &Handler{
		checker: checker,
		jobs:    jobs,
		updates: updates,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/sync/{kind}", h.HandleSync)
	r.Get("/admin/status", h.HandleStatus)
}

type verifyRequest struct {
	QR string `json:"qr"`
}

type certificateView struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	BirthDate  string `json:"birthDate"`
	Issuer     string `json:"issuer"`
	ValidUntil string `json:"validUntil,omitempty"`
}

type ruleResultView struct {
	Identifier  string `json:"identifier"`
	Verdict     string `json:"verdict"`
	Description string `json:"description,omitempty"`
}

type verifyResponse struct {
	Status      string           `json:"status"`
	ErrorCode   string           `json:"errorCode,omitempty"`
	Certificate *certificateView `json:"certificate,omitempty"`
	Results     []ruleResultView `json:"results,omitempty"`
	TestType    string           `json:"testType,omitempty"`
}

// HandleVerify implements POST /verify.
// Input: { "qr": "HC1:..." }
// Output: the check status plus certificate and per-rule details.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dgcerrors.Wrap(err, dgcerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.QR == "" {
		h.writeError(w, r, dgcerrors.New(dgcerrors.CodeBadRequest, "qr is required"))
		return
	}

	result, err := h.checker.Check(ctx, req.QR)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := verifyResponse{
		Status:    string(result.Outcome),
		ErrorCode: string(result.ErrorCode),
		TestType:  result.TestType,
	}
	if result.Certificate != nil {
		cert := result.Certificate
		view := &certificateView{
			Name:      cert.Name.FullName(),
			BirthDate: cert.BirthDate,
			Issuer:    cert.Issuer,
		}
		if entry := cert.DGCEntry(); entry != nil {
			view.Kind = string(entry.Kind())
		}
		if !cert.ValidUntil.IsZero() {
			view.ValidUntil = cert.ValidUntil.Format(time.RFC3339)
		}
		resp.Certificate = view
	}
	for _, rr := range result.RuleResults {
		resp.Results = append(resp.Results, ruleResultView{
			Identifier:  rr.Rule.Identifier,
			Verdict:     string(rr.Verdict),
			Description: rr.Rule.DescriptionFor(languageFor(r)),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSync implements POST /admin/sync/{kind}, forcing one refresh run.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := chi.URLParam(r, "kind")

	job, ok := h.jobs[kind]
	if !ok {
		h.writeError(w, r, dgcerrors.New(dgcerrors.CodeNotFound, "unknown sync kind"))
		return
	}
	if err := job(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"kind": kind, "status": "synced"})
}

type statusEntry struct {
	Kind        string `json:"kind"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// HandleStatus implements GET /admin/status, reporting the last successful
// sync per kind.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kinds := make([]string, 0, len(h.jobs))
	for kind := range h.jobs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	entries := make([]statusEntry, 0, len(kinds))
	for _, kind := range kinds {
		entry := statusEntry{Kind: kind}
		if h.updates != nil {
			at, ok, err := h.updates.LastUpdated(ctx, kind)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			if ok {
				entry.LastUpdated = at.UTC().Format(time.RFC3339)
			}
		}
		entries = append(entries, entry)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"syncs": entries})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError translates the error taxonomy into HTTP responses with a
// consistent JSON envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dgcerrors.GetCode(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			"path", r.URL.Path,
			"code", code,
			"request_id", middleware.GetRequestID(ctx),
		)
	}

	h.writeJSON(w, status, map[string]string{"error": string(code)})
}

func statusFor(code dgcerrors.Code) int {
	switch code {
	case dgcerrors.CodeBadRequest:
		return http.StatusBadRequest
	case dgcerrors.CodeNotFound:
		return http.StatusNotFound
	case dgcerrors.CodeSync:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// languageFor picks the rule description language from Accept-Language,
// defaulting to English.
func languageFor(r *http.Request) string {
	lang := r.Header.Get("Accept-Language")
	if len(lang) >= 2 && lang[:2] == "de" {
		return "de"
	}
	return "en"
}
