package http

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"speza/internal/charts"
	"speza/internal/core"
	"speza/internal/log"
	"speza/internal/services"
)

// transactionView is a ledger row as returned by the API; Index is the
// positional address used by the edit and delete routes.
type transactionView struct {
	Index int `json:"index"`
	core.Transaction
}

type listResponse struct {
	Count        int               `json:"count"`
	Transactions []transactionView `json:"transactions"`
}

type appliedResponse struct {
	Applied bool `json:"applied"`
}

type dashboardResponse struct {
	Empty bool `json:"empty"`
	core.Report
	MonthlyLabels  []string  `json:"monthly_labels"`
	MonthlyIncome  []float64 `json:"monthly_income"`
	MonthlyExpense []float64 `json:"monthly_expense"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	txs, err := s.svc.List(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	resp := listResponse{Count: len(txs), Transactions: make([]transactionView, len(txs))}
	for i, t := range txs {
		resp.Transactions[i] = transactionView{Index: i, Transaction: t}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := parseInput(r)
	if err != nil {
		writeError(w, r, log.OpAppend, err)
		return
	}
	t, err := s.svc.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpAppend, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	in, err := parseInput(r)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	applied, err := s.svc.EditAt(r.Context(), index, in)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	applied, err := s.svc.DeleteAt(r.Context(), index)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) handleEditByID(w http.ResponseWriter, r *http.Request) {
	in, err := parseInput(r)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	t, err := s.svc.EditByID(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, log.OpEdit, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteByID(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: true})
}

// handleClear answers 204 with no body, or a bare 500 "Error".
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearAll(r.Context()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Error clearing data",
			log.FieldOperation, log.OpClear,
			log.FieldError, err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Report(r.Context())
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}
	resp := dashboardResponse{
		Empty:          rep.Empty(),
		Report:         rep,
		MonthlyLabels:  make([]string, len(rep.MonthlySeries)),
		MonthlyIncome:  make([]float64, len(rep.MonthlySeries)),
		MonthlyExpense: make([]float64, len(rep.MonthlySeries)),
	}
	for i, p := range rep.MonthlySeries {
		resp.MonthlyLabels[i] = p.Label
		resp.MonthlyIncome[i] = p.Income
		resp.MonthlyExpense[i] = p.Expense
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChart serves a PNG, or 204 when there is nothing to draw.
func (s *Server) handleChart(which services.Chart) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := s.svc.Chart(r.Context(), which)
		if errors.Is(err, charts.ErrNoData) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			writeError(w, r, log.OpRender, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(img)
	}
}

var exportContentTypes = map[string]string{
	services.FormatCSV:  "text/csv; charset=utf-8",
	services.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (s *Server) handleExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// buffered so a failure can still become an error response
		var buf bytes.Buffer
		if err := s.svc.Export(r.Context(), &buf, format); err != nil {
			writeError(w, r, log.OpExport, err)
			return
		}
		w.Header().Set("Content-Type", exportContentTypes[format])
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.`+format+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
