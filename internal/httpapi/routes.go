// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/report"
	"github.com/julienschmidt/httprouter"
)

type payloadOp func(ctx context.Context, p core.Payload) (core.Response, error)

// withPayload decodes the JSON body and answers with status on success.
func withPayload(status int, op payloadOp) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		p, err := decodeJSON(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp, err := op(r.Context(), p)
		reply(w, r, status, resp, err)
	}
}

func (s *Server) routes(metricsHandler http.Handler) {
	s.router.Handler(http.MethodGet, "/metrics", metricsHandler)
	s.handle(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	// auth
	s.handle(http.MethodPost, "/api/auth/login", withPayload(http.StatusOK, s.svc.Login))
	s.handle(http.MethodPost, "/api/auth/refresh", withPayload(http.StatusOK, s.svc.RefreshToken))
	s.handle(http.MethodPost, "/api/auth/quick-login", withPayload(http.StatusOK, s.svc.QuickLogin))
	s.handle(http.MethodPost, "/api/auth/register", withPayload(http.StatusCreated, s.svc.Register))
	s.handle(http.MethodGet, "/api/auth/user/:email", s.getUser)
	s.handle(http.MethodPost, "/api/auth/validate-token", withPayload(http.StatusOK, s.svc.ValidateToken))
	s.handle(http.MethodPost, "/api/auth/change-password", withPayload(http.StatusOK, s.svc.ChangePassword))

	// mystery audits
	s.handle(http.MethodPost, "/api/attendance/submit", withPayload(http.StatusCreated, s.svc.SubmitMysteryAudit))
	s.handle(http.MethodGet, "/api/attendance/image_url/:record_id", s.mysteryImage)
	s.handle(http.MethodGet, "/api/attendance/list/:user_email", s.listMysteryAudits)
	s.handle(http.MethodGet, "/api/attendance/stats/:user_email", s.mysteryStats)
	s.handle(http.MethodGet, "/api/attendance/users", s.fieldWorkers)

	// school audits
	s.handle(http.MethodPost, "/api/school-audit/start-audit", withPayload(http.StatusCreated, s.svc.StartAudit))
	s.handle(http.MethodPost, "/api/school-audit/end-audit", withPayload(http.StatusOK, s.svc.EndAudit))
	s.handle(http.MethodGet, "/api/school-audit/image/*file_id", s.image)
	s.handle(http.MethodGet, "/api/school-audit/audits/:user_email", s.listAudits)
	s.handle(http.MethodGet, "/api/school-audit/current-audit/:user_email", s.currentAudit)
	s.handle(http.MethodGet, "/api/school-audit/audit-summary/:user_email", s.auditSummary)
	s.handle(http.MethodPost, "/api/school-audit/export-audits", s.exportAudits)
	s.handle(http.MethodGet, "/api/school-audit/controller-audit-summary/:controller_email", s.controllerSummary)
	s.handle(http.MethodPut, "/api/school-audit/edit-audit/:audit_id", s.editAudit)
	s.handle(http.MethodDelete, "/api/school-audit/delete-audit/:audit_id", s.deleteAudit)
	s.handle(http.MethodGet, "/api/school-audit/audit-logs/:user_email", s.auditLogs)
	s.handle(http.MethodPost, "/api/school-audit/migrate-legacy-audits", s.migrateLegacy)
	s.handle(http.MethodPost, "/api/school-audit/convert-sharepoint-urls", s.convertSharePoint)

	// assignments
	s.handle(http.MethodPost, "/api/school-assignment/assign-schools", withPayload(http.StatusCreated, s.svc.AssignSchools))
	s.handle(http.MethodGet, "/api/school-assignment/check-assignment/:trainer_email/:assignment_date", s.checkAssignment)
	s.handle(http.MethodGet, "/api/school-assignment/trainer-assignments/:trainer_email", s.trainerAssignments)
	s.handle(http.MethodGet, "/api/school-assignment/today-assignments/:trainer_email", s.todayAssignments)
	s.handle(http.MethodGet, "/api/school-assignment/controller-assignments/:controller_email", s.controllerAssignments)
	s.handle(http.MethodDelete, "/api/school-assignment/delete-assignment/:assignment_id", s.deleteAssignment)
	s.handle(http.MethodPost, "/api/school-assignment/bulk-assign", withPayload(http.StatusOK, s.svc.BulkAssign))
	s.handle(http.MethodPut, "/api/school-assignment/update-assignment/:assignment_id", s.updateAssignment)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.GetUser(r.Context(), ps.ByName("email"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) mysteryImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.MysteryAuditImage(r.Context(), ps.ByName("record_id"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) listMysteryAudits(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	page, err := core.QueryInt(q.Get("page"), 1, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := core.QueryInt(q.Get("limit"), 10, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.ListMysteryAudits(r.Context(), ps.ByName("user_email"), page, limit)
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) mysteryStats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.MysteryAuditStats(r.Context(), ps.ByName("user_email"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) fieldWorkers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp, err := s.svc.FieldWorkers(r.Context(), r.URL.Query().Get("controllerEmail"))
	reply(w, r, http.StatusOK, resp, err)
}

// image proxies a stored photo. The file id may itself be a URL, so it is
// taken from the rest of the already unescaped path.
func (s *Server) image(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ref := strings.TrimPrefix(ps.ByName("file_id"), "/")
	resize := !strings.EqualFold(r.URL.Query().Get("resize"), "false")
	data, err := s.svc.Image(r.Context(), ref, resize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) listAudits(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	resp, err := s.svc.ListAudits(r.Context(), ps.ByName("user_email"), q.Get("status"), q.Get("date_from"), q.Get("date_to"), s.baseURL(r))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) currentAudit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.CurrentAudit(r.Context(), ps.ByName("user_email"), s.baseURL(r))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) auditSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	resp, err := s.svc.AuditSummary(r.Context(), ps.ByName("user_email"), q.Get("start_date"), q.Get("end_date"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) exportAudits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, err := decodeJSON(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.ExportAudits(r.Context(), core.ExportRequest{
		StartDate:       p.Str("start_date"),
		EndDate:         p.Str("end_date"),
		ControllerEmail: p.Str("controller_email"),
		UserEmail:       p.Str("user_email"),
	}, s.meta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	_, _ = w.Write(res.Data)
}

func (s *Server) controllerSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	resp, err := s.svc.ControllerAuditSummary(r.Context(), ps.ByName("controller_email"), q.Get("start_date"), q.Get("end_date"), s.meta(r))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) editAudit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := decodeJSON(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.EditAudit(r.Context(), ps.ByName("audit_id"), p, s.meta(r))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) deleteAudit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := decodeOptionalJSON(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.DeleteAudit(r.Context(), ps.ByName("audit_id"), p.Str("reason"), s.meta(r))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	limit, err := core.QueryInt(q.Get("limit"), 50, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.AuditLogs(r.Context(), ps.ByName("user_email"), q.Get("action"), q.Get("date_from"), q.Get("date_to"), limit)
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) migrateLegacy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp, err := s.svc.MigrateLegacyAudits(r.Context())
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) convertSharePoint(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp, err := s.svc.ConvertSharePointURLs(r.Context())
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) checkAssignment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.CheckAssignment(r.Context(), ps.ByName("trainer_email"), ps.ByName("assignment_date"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) trainerAssignments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	resp, err := s.svc.TrainerAssignments(r.Context(), ps.ByName("trainer_email"), q.Get("start_date"), q.Get("end_date"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) todayAssignments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.TodayAssignments(r.Context(), ps.ByName("trainer_email"), r.URL.Query().Get("date"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) controllerAssignments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.ControllerAssignments(r.Context(), ps.ByName("controller_email"), r.URL.Query().Get("date_filter"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) deleteAssignment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := s.svc.DeleteAssignment(r.Context(), ps.ByName("assignment_id"))
	reply(w, r, http.StatusOK, resp, err)
}

func (s *Server) updateAssignment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := decodeJSON(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.UpdateAssignment(r.Context(), ps.ByName("assignment_id"), p)
	reply(w, r, http.StatusOK, resp, err)
}
