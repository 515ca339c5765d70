package http

import (
	"net/http"
	"strings"
	"time"

	"pilotage/internal/core"
	"pilotage/internal/log"
	"pilotage/internal/services"
)

type (
	sessionResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	summaryResponse struct {
		Outlet      string `json:"outlet"`
		ProductLine string `json:"product_line"`
		core.MonthlyTable
	}

	positionedRecord struct {
		Position int `json:"position"`
		core.SalesRecord
	}

	recordsResponse struct {
		Rows    int                `json:"rows"`
		Records []positionedRecord `json:"records"`
	}
)

// fail logs err against op and renders it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := writeError(w, err)
	_, code := classify(err)
	fields := log.NewFields().WithErrorType(errorType(code))
	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, op, fields)
		return
	}
	fields.WithError(err).WithOperation(op)
	fields[log.FieldStatusCode] = status
	log.FromContextOr(r.Context(), s.logger).InfoContext(r.Context(), "Request rejected", fields.ToSlice()...)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpLogin, err)
		return
	}
	sess, err := s.gate.Login(p.Get("password"))
	if err != nil {
		s.fail(w, r, log.OpLogin, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(sess.Token, sess.ExpiresAt))
	writeJSON(w, http.StatusCreated, sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		s.gate.Logout(token)
	}
	http.SetCookie(w, s.sessionCookie("", time.Time{}))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := s.sales.Catalog(r.Context())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	years, err := parseYears(q.Get("years"))
	if err != nil {
		s.fail(w, r, log.OpSummary, err)
		return
	}
	query := core.SummaryQuery{
		Outlet:      strings.TrimSpace(q.Get("outlet")),
		ProductLine: queryProduct(q),
		Years:       years,
	}
	table, err := s.sales.Summary(r.Context(), query)
	if err != nil {
		s.fail(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Outlet:       query.Outlet,
		ProductLine:  query.ProductLine,
		MonthlyTable: table,
	})
}

// handleKPI compares one week of two years. The years default to the
// current one and the one before it.
func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	week, err := requireInt("week", strings.TrimSpace(q.Get("week")))
	if err != nil {
		s.fail(w, r, log.OpKPI, err)
		return
	}
	current := s.now().Year()
	if v := strings.TrimSpace(q.Get("current")); v != "" {
		if current, err = requireInt("current", v); err != nil {
			s.fail(w, r, log.OpKPI, err)
			return
		}
	}
	baseline := current - 1
	if v := strings.TrimSpace(q.Get("baseline")); v != "" {
		if baseline, err = requireInt("baseline", v); err != nil {
			s.fail(w, r, log.OpKPI, err)
			return
		}
	}

	kpi, err := s.sales.KPI(r.Context(), services.KPIQuery{
		Outlet:      strings.TrimSpace(q.Get("outlet")),
		ProductLine: queryProduct(q),
		Week:        week,
		Current:     current,
		Baseline:    baseline,
	})
	if err != nil {
		s.fail(w, r, log.OpKPI, err)
		return
	}
	writeJSON(w, http.StatusOK, kpi)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ds, err := s.sales.Load(r.Context())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	out := recordsResponse{Rows: len(ds), Records: make([]positionedRecord, len(ds))}
	for i, rec := range ds {
		out.Records[i] = positionedRecord{Position: i, SalesRecord: rec}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendRecord(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpAppend, err)
		return
	}
	rec, err := parseRecord(p)
	if err != nil {
		s.fail(w, r, log.OpAppend, err)
		return
	}
	res, err := s.sales.AppendRecord(r.Context(), rec)
	if err != nil {
		s.fail(w, r, log.OpAppend, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteLast(w http.ResponseWriter, r *http.Request) {
	res, err := s.sales.DeleteLast(r.Context())
	if err != nil {
		s.fail(w, r, log.OpDeleteLast, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteAt(w http.ResponseWriter, r *http.Request) {
	pos, err := positionParam(r)
	if err != nil {
		s.fail(w, r, log.OpDeleteAt, err)
		return
	}
	res, err := s.sales.DeleteAt(r.Context(), pos)
	if err != nil {
		s.fail(w, r, log.OpDeleteAt, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteMatching(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpDeleteKey, err)
		return
	}
	key, err := parseKey(p)
	if err != nil {
		s.fail(w, r, log.OpDeleteKey, err)
		return
	}
	res, err := s.sales.DeleteMatching(r.Context(), key)
	if err != nil {
		s.fail(w, r, log.OpDeleteKey, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInitializeOutlet(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpInitOutlet, err)
		return
	}
	name := p.Get("name")
	if name == "" {
		name = p.Get("outlet")
	}
	res, err := s.sales.InitializeOutlet(r.Context(), name)
	if err != nil {
		s.fail(w, r, log.OpInitOutlet, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
