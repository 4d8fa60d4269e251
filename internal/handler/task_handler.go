package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimate/internal/model"
	"aimate/internal/service/task"
)

type TaskService interface {
	List(ctx context.Context, userID int64, f model.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, userID, id int64) (*model.Task, error)
	Create(ctx context.Context, userID int64, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, userID, id int64, patch model.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, userID, id int64) error
	Generate(ctx context.Context, userID int64, goal string) ([]model.Task, error)
}

type TaskHandler struct {
	svc    TaskService
	logger *zap.Logger
}

func NewTaskHandler(svc TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, logger: logger}
}

// List handles GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	f := model.TaskFilter{
		Status:   model.TaskStatus(c.Query("status")),
		Goal:     c.Query("goal"),
		Priority: model.TaskPriority(c.Query("priority")),
	}
	tasks, err := h.svc.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(tasks), "tasks": tasks})
}

// Get handles GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	t, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": t})
}

type createTaskRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Goal        *string            `json:"goal"`
	Priority    model.TaskPriority `json:"priority" binding:"omitempty,enum"`
	Status      model.TaskStatus   `json:"status" binding:"omitempty,enum"`
	DueDate     *Date              `json:"dueDate"`
	Tags        []string           `json:"tags"`
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), currentUser(c), task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Goal:        req.Goal,
		Priority:    req.Priority,
		Status:      req.Status,
		DueDate:     datePtr(req.DueDate),
		Tags:        req.Tags,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": t})
}

type updateTaskRequest struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Goal        *string             `json:"goal"`
	Priority    *model.TaskPriority `json:"priority" binding:"omitempty,enum"`
	Status      *model.TaskStatus   `json:"status" binding:"omitempty,enum"`
	DueDate     OptionalDate        `json:"dueDate"`
	Tags        *[]string           `json:"tags"`
}

// Update handles PUT /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req updateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	patch := model.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Goal:        req.Goal,
		Priority:    req.Priority,
		Status:      req.Status,
		Tags:        req.Tags,
	}
	if req.DueDate.Set {
		patch.DueDate = req.DueDate.Value
		patch.ClearDue = req.DueDate.Value == nil
	}
	t, err := h.svc.Update(c.Request.Context(), currentUser(c), id, patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": t})
}

// Delete handles DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task deleted successfully"})
}

// Generate handles POST /api/tasks/generate
func (h *TaskHandler) Generate(c *gin.Context) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	tasks, err := h.svc.Generate(c.Request.Context(), currentUser(c), req.Goal)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "count": len(tasks), "tasks": tasks})
}
