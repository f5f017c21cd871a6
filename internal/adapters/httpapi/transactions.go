package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

func (s *Server) registerTransactions(api *gin.RouterGroup) {
	api.GET("/transactions", s.listTransactions)
	api.POST("/transactions", s.openTransaction)
	api.GET("/transactions/:id", s.getTransaction)
	api.PUT("/transactions/:id", s.updateTransaction)
	api.POST("/transactions/:id/return", s.returnTransaction)
	api.POST("/transactions/:id/handover", s.handOver)
	api.POST("/transactions/:id/cancel", s.cancelTransaction)
}

func (s *Server) listTransactions(c *gin.Context) {
	filter := core.TransactionFilter{
		ItemID:    c.Query("item_id"),
		SessionID: c.Query("session_id"),
		Status:    domain.TransactionStatus(c.Query("status")),
		OpenOnly:  c.Query("open") == "true",
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, "unknown transaction status "+string(filter.Status))
		return
	}
	out, err := s.svc.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) openTransaction(c *gin.Context) {
	var req transactionRequest
	if !bind(c, &req, false) {
		return
	}
	terms := core.LoanTerms{
		DateRequested: req.DateRequested.Time,
		DueDate:       req.DueDate.Time,
		Remarks:       req.Remarks,
		ReferenceID:   req.ReferenceID,
	}
	created, res, err := s.svc.OpenTransaction(c.Request.Context(), req.ItemID, req.Borrower, terms, req.Reservation)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "item", created, res)
}

func (s *Server) getTransaction(c *gin.Context) {
	t, err := s.svc.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": t})
}

func (s *Server) updateTransaction(c *gin.Context) {
	var req transactionRequest
	if !bind(c, &req, false) {
		return
	}
	update := domain.Transaction{
		Base:        domain.Base{ID: c.Param("id")},
		Borrower:    req.Borrower,
		DueDate:     req.DueDate.Time,
		Remarks:     req.Remarks,
		ReferenceID: req.ReferenceID,
		Status:      req.Status,
	}
	updated, res, err := s.svc.UpdateTransaction(c.Request.Context(), update)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", updated, res)
}

func (s *Server) returnTransaction(c *gin.Context) {
	var req returnRequest
	if !bind(c, &req, false) {
		return
	}
	t, res, err := s.svc.CompleteTransaction(c.Request.Context(), c.Param("id"), req.Condition, req.Remarks)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", t, res)
}

func (s *Server) handOver(c *gin.Context) {
	t, res, err := s.svc.HandOverReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", t, res)
}

func (s *Server) cancelTransaction(c *gin.Context) {
	t, res, err := s.svc.CancelTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", t, res)
}
