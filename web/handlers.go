package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/export"
	"github.com/doujins-org/plankit/reportmanager"
)

const (
	permViewSQLReport   = "reportmanager.view_sqlreport"
	permAddSQLReport    = "reportmanager.add_sqlreport"
	permChangeSQLReport = "reportmanager.change_sqlreport"
)

type menuItem struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	URL        string `json:"url,omitempty"`
	Window     bool   `json:"window,omitempty"`
	Prefix     bool   `json:"prefix,omitempty"`
	Javascript string `json:"javascript,omitempty"`
	Separator  bool   `json:"separator,omitempty"`
}

type menuGroup struct {
	Name  string     `json:"name"`
	Label string     `json:"label"`
	Items []menuItem `json:"items"`
}

func (s *Server) menu(w http.ResponseWriter, r *http.Request) {
	if s.Menu == nil {
		writeJSON(w, http.StatusOK, []menuGroup{})
		return
	}
	out := []menuGroup{}
	for _, g := range s.Menu.For(principalFrom(r.Context())) {
		mg := menuGroup{Name: g.Name, Label: g.Label}
		for _, it := range g.Items {
			mg.Items = append(mg.Items, menuItem{
				Name:       it.Name,
				Label:      it.Label,
				URL:        it.URL,
				Window:     it.Window,
				Prefix:     it.Prefix,
				Javascript: it.Javascript,
				Separator:  it.Separator,
			})
		}
		out = append(out, mg)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permViewSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	tables, err := s.Reports.Schema(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permViewSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	reports, err := s.Reports.List(r.Context(), p.User.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []reportmanager.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// loadReport returns the report of the URL when p may read it.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request, p *auth.Principal) (*reportmanager.Report, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return nil, false
	}
	rep, err := s.Reports.Get(r.Context(), id)
	if errors.Is(err, reportmanager.ErrNotFound) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if !rep.Public && !owns(p, rep) && !p.Superuser() {
		http.Error(w, "Report not found", http.StatusNotFound)
		return nil, false
	}
	return rep, true
}

func owns(p *auth.Principal, rep *reportmanager.Report) bool {
	return rep.UserID != nil && *rep.UserID == p.User.ID
}

type reportResponse struct {
	Report *reportmanager.Report `json:"report"`
	Result *reportmanager.Result `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permViewSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	rep, ok := s.loadReport(w, r, p)
	if !ok {
		return
	}
	resp := reportResponse{Report: rep}
	if s.Runner != nil {
		// Statement errors go back in the body with a 200.
		res, err := s.Runner.Run(r.Context(), rep.SQL)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = res
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) newReport(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permAddSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: &reportmanager.Report{}})
}

type reportInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
	Public      bool   `json:"public"`
}

func decodeInput(w http.ResponseWriter, r *http.Request) (reportInput, error) {
	var in reportInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("invalid report: %w", err)
	}
	return in, nil
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permAddSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	in, err := decodeInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	uid := p.User.ID
	rep := &reportmanager.Report{Name: in.Name, Description: in.Description, SQL: in.SQL, Public: in.Public, UserID: &uid}
	if _, err := reportmanager.CleanSQL(rep.SQL); err != nil || rep.Name == "" {
		http.Error(w, "A report needs a name and a single SQL statement", http.StatusBadRequest)
		return
	}
	if err := s.Reports.Create(r.Context(), rep); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reportResponse{Report: rep})
}

func (s *Server) updateReport(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.HasPerm(permChangeSQLReport) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	rep, ok := s.loadReport(w, r, p)
	if !ok {
		return
	}
	if !owns(p, rep) && !p.Superuser() {
		http.Error(w, "Only the owner can change a report", http.StatusForbidden)
		return
	}
	in, err := decodeInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rep.Name, rep.Description, rep.SQL, rep.Public = in.Name, in.Description, in.SQL, in.Public
	if _, err := reportmanager.CleanSQL(rep.SQL); err != nil || rep.Name == "" {
		http.Error(w, "A report needs a name and a single SQL statement", http.StatusBadRequest)
		return
	}
	if err := s.Reports.Update(r.Context(), rep); err != nil {
		if errors.Is(err, reportmanager.ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: rep})
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	if !principalFrom(r.Context()).Superuser() {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	if s.UploadFolder == "" {
		http.Error(w, "No upload folder configured", http.StatusNotFound)
		return
	}
	files, err := export.ListExportedFiles(s.UploadFolder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if files == nil {
		files = []export.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	if !principalFrom(r.Context()).Superuser() {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}
	if s.UploadFolder == "" {
		http.Error(w, "No upload folder configured", http.StatusNotFound)
		return
	}
	name := mux.Vars(r)["filename"]
	path, err := export.ExportedPath(s.UploadFolder, name)
	if err != nil {
		http.Error(w, "Invalid file name", http.StatusBadRequest)
		return
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
