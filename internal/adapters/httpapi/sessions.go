package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

func (s *Server) registerSessions(api *gin.RouterGroup) {
	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/items", s.addSessionItem)
	api.DELETE("/sessions/:id/items/:itemID", s.removeSessionItem)
	api.POST("/sessions/:id/items/:itemID/release", s.releaseSessionItem)
	api.POST("/sessions/:id/items/:itemID/return", s.returnSessionItem)
	api.POST("/sessions/:id/scan", s.scanIntoSession)
	api.POST("/sessions/:id/submit", s.submitSession)
	api.POST("/sessions/:id/approve", s.approveSession)
	api.POST("/sessions/:id/reject", s.rejectSession)
	api.POST("/sessions/:id/release", s.releaseSession)
	api.POST("/sessions/:id/cancel", s.cancelSession)
	api.POST("/sessions/:id/complete", s.completeSession)
}

type sessionOp func(c *gin.Context) (domain.BorrowSession, domain.Result, error)

// session adapts a session transition into a handler that replies with the updated session.
func (s *Server) session(op sessionOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, res, err := op(c)
		if err != nil {
			if !c.IsAborted() {
				s.fail(c, err)
			}
			return
		}
		respond(c, http.StatusOK, "item", sess, res)
	}
}

func (s *Server) listSessions(c *gin.Context) {
	ctx := c.Request.Context()
	if code := c.Query("code"); code != "" {
		sess, err := s.svc.GetSessionByCode(ctx, code)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": []domain.BorrowSession{sess}})
		return
	}
	var statuses []domain.SessionStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := domain.SessionStatus(strings.TrimSpace(part))
			if !st.Valid() {
				badRequest(c, "unknown session status "+string(st))
				return
			}
			statuses = append(statuses, st)
		}
	}
	out, err := s.svc.ListSessions(ctx, statuses...)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) createSession(c *gin.Context) {
	var req sessionRequest
	if !bind(c, &req, false) {
		return
	}
	created, res, err := s.svc.CreateSession(c.Request.Context(), core.SessionRequest{
		Borrower:           req.Borrower,
		Department:         req.Department,
		Purpose:            req.Purpose,
		RequestedDate:      req.RequestedDate.Time,
		ExpectedReturnDate: req.ExpectedReturnDate.Time,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "item", created, res)
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": sess})
}

func (s *Server) deleteSession(c *gin.Context) {
	res, err := s.svc.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "deleted", true, res)
}

func (s *Server) addSessionItem(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		var req itemRef
		if !bind(c, &req, false) {
			return domain.BorrowSession{}, domain.Result{}, errAborted
		}
		return s.svc.AddItemToSession(c.Request.Context(), c.Param("id"), req.ItemID)
	})(c)
}

func (s *Server) scanIntoSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		var req scanRequest
		if !bind(c, &req, false) {
			return domain.BorrowSession{}, domain.Result{}, errAborted
		}
		return s.svc.ScanIntoSession(c.Request.Context(), c.Param("id"), req.Code)
	})(c)
}

func (s *Server) removeSessionItem(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.RemoveItemFromSession(c.Request.Context(), c.Param("id"), c.Param("itemID"))
	})(c)
}

func (s *Server) submitSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		ctx := c.Request.Context()
		sess, err := s.svc.GetSession(ctx, c.Param("id"))
		if err != nil {
			return domain.BorrowSession{}, domain.Result{}, err
		}
		if len(sess.ItemIDs) == 0 {
			return domain.BorrowSession{}, domain.Result{}, domain.ValidationError{Field: "item_ids", Message: "add at least one item before submitting"}
		}
		return s.svc.SubmitSessionForApproval(ctx, sess.ID)
	})(c)
}

func (s *Server) approveSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.ApproveSession(c.Request.Context(), c.Param("id"))
	})(c)
}

func (s *Server) rejectSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		var req reasonRequest
		if !bind(c, &req, false) {
			return domain.BorrowSession{}, domain.Result{}, errAborted
		}
		if strings.TrimSpace(req.Reason) == "" {
			return domain.BorrowSession{}, domain.Result{}, domain.ValidationError{Field: "reason", Message: "required"}
		}
		return s.svc.RejectSession(c.Request.Context(), c.Param("id"), req.Reason)
	})(c)
}

func (s *Server) releaseSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.ReleaseSession(c.Request.Context(), c.Param("id"))
	})(c)
}

func (s *Server) releaseSessionItem(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.ReleaseItemInSession(c.Request.Context(), c.Param("id"), c.Param("itemID"))
	})(c)
}

func (s *Server) cancelSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.CancelSession(c.Request.Context(), c.Param("id"))
	})(c)
}

func (s *Server) completeSession(c *gin.Context) {
	s.session(func(c *gin.Context) (domain.BorrowSession, domain.Result, error) {
		return s.svc.CheckSessionCompletion(c.Request.Context(), c.Param("id"))
	})(c)
}

func (s *Server) returnSessionItem(c *gin.Context) {
	var req returnRequest
	if !bind(c, &req, false) {
		return
	}
	t, res, err := s.svc.ReturnSessionItem(c.Request.Context(), c.Param("id"), c.Param("itemID"), req.Condition, req.Remarks)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", t, res)
}
