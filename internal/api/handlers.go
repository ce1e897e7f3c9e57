package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// TaskView is a task as returned by the API.
type TaskView struct {
	*tasks.Task
	Depth int `json:"depth"`
}

type listRequest struct {
	Title string `json:"title"`
}

type anchorRequest struct {
	Kind   string `json:"kind"`
	TaskID string `json:"task_id"`
}

type taskRequest struct {
	Title     string        `json:"title"`
	Notes     string        `json:"notes"`
	Completed bool          `json:"completed"`
	DueAt     *time.Time    `json:"due_at"`
	Due       string        `json:"due"`
	Anchor    anchorRequest `json:"anchor"`
}

func badRequest(err error) error {
	return fmt.Errorf("invalid request body: %v: %w", err, tasks.ErrInvalidOperation)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getLists(c *gin.Context) {
	lists, err := s.engine.Store().ListLists(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if lists == nil {
		lists = []*tasks.List{}
	}
	c.JSON(http.StatusOK, lists)
}

func (s *Server) postList(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	list, err := s.engine.Store().CreateList(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (s *Server) patchList(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	ctx := c.Request.Context()
	if err := s.engine.Store().RenameList(ctx, c.Param("list"), req.Title); err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.engine.Store().GetList(ctx, c.Param("list"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) deleteList(c *gin.Context) {
	if err := s.engine.Store().DeleteList(c.Request.Context(), c.Param("list")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getTasks(c *gin.Context) {
	ordered, err := s.engine.List(c.Request.Context(), c.Param("list"))
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]TaskView, 0, len(ordered))
	for _, t := range ordered {
		views = append(views, TaskView{Task: t, Depth: ordering.Depth(t)})
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) postTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest(err))
		return
	}

	kind, err := ordering.ParseAnchorKind(req.Anchor.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}

	content := tasks.Content{
		Title:     req.Title,
		Notes:     req.Notes,
		Completed: req.Completed,
		DueAt:     req.DueAt,
	}
	if req.Due != "" {
		if req.DueAt != nil {
			s.fail(c, fmt.Errorf("due and due_at are mutually exclusive: %w", tasks.ErrInvalidOperation))
			return
		}
		if content.DueAt, err = s.due.Parse(req.Due); err != nil {
			s.fail(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	anchor := ordering.Anchor{Kind: kind, TaskID: req.Anchor.TaskID}
	if anchor.Kind != ordering.AnchorTop {
		// The anchor decides the list; it must agree with the path.
		at, err := s.engine.Store().GetByID(ctx, anchor.TaskID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if at.ListID != c.Param("list") {
			s.fail(c, fmt.Errorf("anchor %s belongs to list %s: %w", at.ID, at.ListID, tasks.ErrInvalidOperation))
			return
		}
	}

	created, err := s.engine.Insert(ctx, c.Param("list"), content, anchor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, TaskView{Task: created, Depth: ordering.Depth(created)})
}

func (s *Server) deleteTask(c *gin.Context) {
	deleted, err := s.engine.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) toggleIndent(c *gin.Context) {
	updated, err := s.engine.ToggleIndentation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TaskView{Task: updated, Depth: ordering.Depth(updated)})
}

func (s *Server) verifyList(c *gin.Context) {
	err := s.engine.Verify(c.Request.Context(), c.Param("list"))
	var verr *ordering.VerifyError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"list_id": c.Param("list"), "ok": true, "problems": []string{}})
	case errors.As(err, &verr):
		c.JSON(http.StatusOK, gin.H{"list_id": verr.ListID, "ok": false, "problems": verr.Problems})
	default:
		s.fail(c, err)
	}
}
