package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

func (s *Server) registerInventory(api *gin.RouterGroup) {
	api.GET("/categories", s.listCategories)
	api.POST("/categories", s.createCategory)
	api.PUT("/categories/:id", s.updateCategory)
	api.DELETE("/categories/:id", s.deleteCategory)

	api.GET("/items", s.listItems)
	api.POST("/items", s.createItem)
	api.GET("/items/:id", s.getItem)
	api.PUT("/items/:id", s.updateItem)
	api.DELETE("/items/:id", s.deleteItem)
	api.POST("/items/:id/damage", s.markDamaged)
	api.POST("/items/:id/maintenance", s.reportIssue)
	api.GET("/scan/:code", s.resolveScan)
}

// bind decodes a JSON body. An empty body leaves dst untouched when optional is set.
func bind(c *gin.Context, dst any, optional bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		badRequest(c, err.Error())
		return false
	}
	return true
}

func (s *Server) listCategories(c *gin.Context) {
	out, err := s.svc.ListCategories(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) createCategory(c *gin.Context) {
	var req categoryRequest
	if !bind(c, &req, false) {
		return
	}
	created, res, err := s.svc.CreateCategory(c.Request.Context(), domain.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "item", created, res)
}

func (s *Server) updateCategory(c *gin.Context) {
	var req categoryRequest
	if !bind(c, &req, false) {
		return
	}
	updated, res, err := s.svc.UpdateCategory(c.Request.Context(), c.Param("id"), func(cat *domain.Category) error {
		if req.Name != "" {
			cat.Name = req.Name
		}
		cat.Description = req.Description
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", updated, res)
}

func (s *Server) deleteCategory(c *gin.Context) {
	res, err := s.svc.DeleteCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "deleted", true, res)
}

func (s *Server) listItems(c *gin.Context) {
	filter := core.ItemFilter{
		CategoryID: c.Query("category_id"),
		Status:     domain.ItemStatus(c.Query("status")),
		Query:      c.Query("q"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, "unknown item status "+string(filter.Status))
		return
	}
	out, err := s.svc.ListItems(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) createItem(c *gin.Context) {
	var req itemRequest
	if !bind(c, &req, false) {
		return
	}
	created, res, err := s.svc.CreateItem(c.Request.Context(), req.item())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "item", created, res)
}

func (s *Server) getItem(c *gin.Context) {
	item, err := s.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) updateItem(c *gin.Context) {
	var req itemRequest
	if !bind(c, &req, false) {
		return
	}
	updated, res, err := s.svc.UpdateItem(c.Request.Context(), c.Param("id"), func(item *domain.Item) error {
		req.apply(item)
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", updated, res)
}

func (s *Server) deleteItem(c *gin.Context) {
	archived, res, err := s.svc.DeleteItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "archived", archived, res)
}

func (s *Server) markDamaged(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req, true) {
		return
	}
	item, res, err := s.svc.MarkDamaged(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", item, res)
}

func (s *Server) reportIssue(c *gin.Context) {
	var req issueRequest
	if !bind(c, &req, false) {
		return
	}
	log, res, err := s.svc.ReportIssue(c.Request.Context(), c.Param("id"), req.IssueDescription)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "item", log, res)
}

func (s *Server) resolveScan(c *gin.Context) {
	item, err := s.svc.ResolveScan(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
