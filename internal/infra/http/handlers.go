package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reconledger/internal/domain"
	"reconledger/internal/usecase"
	"reconledger/internal/variance"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// amount accepts a JSON string or bare number and keeps its literal text so
// no precision is lost before decimal parsing.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = amount(n.String())
	return nil
}

type ingestTicketRequest struct {
	TicketID string          `json:"ticket_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type ingestTicketResponse struct {
	Ticket domain.Ticket `json:"ticket"`
	IsNew  bool          `json:"is_new"`
}

type modifyTicketRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type heartbeatRequest struct {
	OpenTicketIDs []string `json:"open_ticket_ids"`
}

type heartbeatResponse struct {
	Closed []string `json:"closed"`
}

type recordAuditRequest struct {
	SourceA amount `json:"source_a_amount"`
	SourceB amount `json:"source_b_amount"`
	SourceC amount `json:"source_c_amount"`
}

type assignBagRequest struct {
	AssignmentDate   string `json:"assignment_date"`
	SourceSystem     string `json:"source_system"`
	SourceIdentifier string `json:"source_identifier"`
	ExpectedAmount   amount `json:"expected_amount"`
	EmployeeID       string `json:"employee_id,omitempty"`
	POSDeviceID      string `json:"pos_device_id,omitempty"`
	ShiftID          string `json:"shift_id,omitempty"`
}

type assignBagsRequest struct {
	Bags []assignBagRequest `json:"bags"`
}

type verifyBagRequest struct {
	CountedAmount amount `json:"counted_amount"`
	CountedBy     string `json:"counted_by"`
	Notes         string `json:"notes,omitempty"`
}

func (s *Server) handleIngestTicket(c *gin.Context) {
	var req ingestTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	ticket, isNew, err := s.gateway.IngestTicket(c.Request.Context(), usecase.IngestTicketInput{
		TicketID: req.TicketID,
		Payload:  req.Payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	c.JSON(status, ingestTicketResponse{Ticket: ticket, IsNew: isNew})
}

func (s *Server) handleModifyTicket(c *gin.Context) {
	var req modifyTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	ticket, err := s.gateway.ModifyTicket(c.Request.Context(), c.Param("id"), req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) handleCloseTicket(c *gin.Context) {
	ticket, err := s.gateway.CloseTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) handleGetTicket(c *gin.Context) {
	ticket, err := s.gateway.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) handleTicketHistory(c *gin.Context) {
	events, err := s.gateway.GetTicketHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleListTickets(c *gin.Context) {
	if status := c.DefaultQuery("status", string(domain.TicketOpen)); status != string(domain.TicketOpen) {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "only status=open is supported")
		return
	}
	tickets, err := s.gateway.ListOpenTickets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *Server) handleTicketHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if !bindJSON(c, &req) {
		return
	}
	closed, err := s.gateway.TicketHeartbeat(c.Request.Context(), req.OpenTicketIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	if closed == nil {
		closed = []string{}
	}
	c.JSON(http.StatusOK, heartbeatResponse{Closed: closed})
}

func (s *Server) handleTicketConsistency(c *gin.Context) {
	report, err := s.gateway.CheckTicketConsistency(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRecordAudit(c *gin.Context) {
	date, err := domain.ParseDate(c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req recordAuditRequest
	if !bindJSON(c, &req) {
		return
	}
	in := usecase.RecordDailyInput{Date: date}
	if in.SourceA, err = variance.ParseAmount("source_a_amount", string(req.SourceA)); err != nil {
		writeError(c, err)
		return
	}
	if in.SourceB, err = variance.ParseAmount("source_b_amount", string(req.SourceB)); err != nil {
		writeError(c, err)
		return
	}
	if in.SourceC, err = variance.ParseAmount("source_c_amount", string(req.SourceC)); err != nil {
		writeError(c, err)
		return
	}
	audit, err := s.gateway.RecordDailyAudit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (s *Server) handleGetAudit(c *gin.Context) {
	date, err := domain.ParseDate(c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.gateway.GetPaymentVariance(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleAuditRevisions(c *gin.Context) {
	date, err := domain.ParseDate(c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	revisions, err := s.gateway.ListPaymentAuditRevisions(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revisions)
}

func (s *Server) handleListAudits(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	audits, err := s.gateway.ListPaymentAudits(c.Request.Context(), rng)
	if err != nil {
		writeError(c, err)
		return
	}
	if audits == nil {
		audits = []domain.DailyPaymentAudit{}
	}
	c.JSON(http.StatusOK, audits)
}

func (s *Server) handleAuditReport(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := s.gateway.PaymentAuditReport(c.Request.Context(), rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAssignBag(c *gin.Context) {
	var req assignBagRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(c, err)
		return
	}
	assignment, err := s.gateway.AssignBag(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

func (s *Server) handleAssignBags(c *gin.Context) {
	var req assignBagsRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Bags) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "bags must not be empty")
		return
	}
	ins := make([]usecase.AssignBagInput, 0, len(req.Bags))
	for i, bag := range req.Bags {
		in, err := bag.input()
		if err != nil {
			writeError(c, fmt.Errorf("bags[%d]: %w", i, err))
			return
		}
		ins = append(ins, in)
	}
	assignments, err := s.gateway.AssignBags(c.Request.Context(), ins)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignments)
}

func (r assignBagRequest) input() (usecase.AssignBagInput, error) {
	date, err := domain.ParseDate(r.AssignmentDate)
	if err != nil {
		return usecase.AssignBagInput{}, err
	}
	expected, err := variance.ParseAmount("expected_amount", string(r.ExpectedAmount))
	if err != nil {
		return usecase.AssignBagInput{}, err
	}
	return usecase.AssignBagInput{
		AssignmentDate:   date,
		SourceSystem:     r.SourceSystem,
		SourceIdentifier: r.SourceIdentifier,
		ExpectedAmount:   expected,
		EmployeeID:       r.EmployeeID,
		POSDeviceID:      r.POSDeviceID,
		ShiftID:          r.ShiftID,
	}, nil
}

func (s *Server) handleVerifyBag(c *gin.Context) {
	var req verifyBagRequest
	if !bindJSON(c, &req) {
		return
	}
	counted, err := variance.ParseAmount("counted_amount", string(req.CountedAmount))
	if err != nil {
		writeError(c, err)
		return
	}
	verification, err := s.gateway.VerifyBag(c.Request.Context(), usecase.VerifyBagInput{
		BagID:         c.Param("bag_id"),
		CountedAmount: counted,
		CountedBy:     req.CountedBy,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, verification)
}

func (s *Server) handleDiscrepancies(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var threshold *variance.Threshold
	if abs, pct := c.Query("threshold"), c.Query("threshold_percent"); abs != "" || pct != "" {
		if abs == "" {
			abs = "0"
		}
		if pct == "" {
			pct = "0"
		}
		th, err := variance.ParseThreshold(abs, pct)
		if err != nil {
			writeError(c, err)
			return
		}
		threshold = &th
	}
	records, err := s.gateway.ListDiscrepancies(c.Request.Context(), rng, threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []domain.Discrepancy{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleGetBag(c *gin.Context) {
	bag, err := s.gateway.GetBag(c.Request.Context(), c.Param("bag_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bag)
}

func (s *Server) handleUnverifiedBags(c *gin.Context) {
	bags, err := s.gateway.ListUnverifiedBags(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if bags == nil {
		bags = []domain.BlindBag{}
	}
	c.JSON(http.StatusOK, bags)
}

func (s *Server) handleDeleteBag(c *gin.Context) {
	if err := s.gateway.DeleteBag(c.Request.Context(), c.Param("bag_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return false
	}
	return true
}

func parseRange(c *gin.Context) (domain.DateRange, error) {
	from, err := domain.ParseDate(c.Query("from"))
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("from: %w", err)
	}
	to, err := domain.ParseDate(c.Query("to"))
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("to: %w", err)
	}
	return domain.NewDateRange(from, to)
}

func writeError(c *gin.Context, err error) {
	code := usecase.ResultCode(err)
	status := http.StatusInternalServerError
	message := err.Error()
	switch code {
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "INVALID_TRANSITION", "ALREADY_VERIFIED", "CONFLICT":
		status = http.StatusConflict
	case "VALIDATION_ERROR":
		status = http.StatusBadRequest
	default:
		_ = c.Error(err)
		message = "internal error"
	}
	if errors.Is(err, domain.ErrDuplicateIdentifier) {
		message = "could not allocate a unique bag id"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
