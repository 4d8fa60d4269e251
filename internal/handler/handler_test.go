package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/service/task"
)

const testUserID int64 = 42

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine 模拟认证中间件，固定写入 testUserID
func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(UserIDKey, testUserID) })
	return r
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockTaskService struct {
	mock.Mock
}

func (m *mockTaskService) List(ctx context.Context, userID int64, f model.TaskFilter) ([]model.Task, error) {
	args := m.Called(ctx, userID, f)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *mockTaskService) Get(ctx context.Context, userID, id int64) (*model.Task, error) {
	args := m.Called(ctx, userID, id)
	t, _ := args.Get(0).(*model.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) Create(ctx context.Context, userID int64, in task.CreateInput) (*model.Task, error) {
	args := m.Called(ctx, userID, in)
	t, _ := args.Get(0).(*model.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) Update(ctx context.Context, userID, id int64, patch model.TaskPatch) (*model.Task, error) {
	args := m.Called(ctx, userID, id, patch)
	t, _ := args.Get(0).(*model.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) Delete(ctx context.Context, userID, id int64) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockTaskService) Generate(ctx context.Context, userID int64, goal string) ([]model.Task, error) {
	args := m.Called(ctx, userID, goal)
	tasks, _ := args.Get(0).([]model.Task)
	return tasks, args.Error(1)
}

func taskRouter(svc TaskService) *gin.Engine {
	h := NewTaskHandler(svc, zap.NewNop())
	r := newEngine()
	r.GET("/api/tasks", h.List)
	r.POST("/api/tasks", h.Create)
	r.POST("/api/tasks/generate", h.Generate)
	r.GET("/api/tasks/:id", h.Get)
	r.PUT("/api/tasks/:id", h.Update)
	r.DELETE("/api/tasks/:id", h.Delete)
	return r
}

func TestTaskHandler_Create(t *testing.T) {
	svc := new(mockTaskService)
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.On("Create", mock.Anything, testUserID, task.CreateInput{
		Title:    "Write report",
		Priority: model.PriorityHigh,
		DueDate:  &due,
	}).Return(&model.Task{ID: 1, Title: "Write report", Priority: model.PriorityHigh, Status: model.TaskPending}, nil)

	w := send(taskRouter(svc), http.MethodPost, "/api/tasks", `{"title":"Write report","priority":"high","dueDate":"2024-06-01"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"title":"Write report"`)
	svc.AssertExpectations(t)
}

func TestTaskHandler_RejectsUnknownEnum(t *testing.T) {
	svc := new(mockTaskService)

	w := send(taskRouter(svc), http.MethodPost, "/api/tasks", `{"title":"x","priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid value for priority"}`, w.Body.String())

	w = send(taskRouter(svc), http.MethodPut, "/api/tasks/3", `{"status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid value for status"}`, w.Body.String())

	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskHandler_MalformedBody(t *testing.T) {
	w := send(taskRouter(new(mockTaskService)), http.MethodPost, "/api/tasks", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid request body"}`, w.Body.String())
}

func TestTaskHandler_UpdateDueDate(t *testing.T) {
	svc := new(mockTaskService)
	svc.On("Update", mock.Anything, testUserID, int64(3), mock.MatchedBy(func(p model.TaskPatch) bool {
		return p.ClearDue && p.DueDate == nil
	})).Return(&model.Task{ID: 3}, nil).Once()
	svc.On("Update", mock.Anything, testUserID, int64(4), mock.MatchedBy(func(p model.TaskPatch) bool {
		return !p.ClearDue && p.DueDate == nil && p.Title != nil && *p.Title == "renamed"
	})).Return(&model.Task{ID: 4}, nil).Once()

	r := taskRouter(svc)
	assert.Equal(t, http.StatusOK, send(r, http.MethodPut, "/api/tasks/3", `{"dueDate":null}`).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodPut, "/api/tasks/4", `{"title":"renamed"}`).Code)
	svc.AssertExpectations(t)
}

func TestTaskHandler_ErrorMapping(t *testing.T) {
	svc := new(mockTaskService)
	svc.On("Get", mock.Anything, testUserID, int64(9)).Return(nil, apperr.NotFound("Task"))
	svc.On("Delete", mock.Anything, testUserID, int64(9)).Return(errors.New("connection reset"))

	r := taskRouter(svc)

	w := send(r, http.MethodGet, "/api/tasks/9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Task not found"}`, w.Body.String())

	w = send(r, http.MethodDelete, "/api/tasks/9", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"Server error"`)
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = send(r, http.MethodGet, "/api/tasks/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_Generate(t *testing.T) {
	svc := new(mockTaskService)
	svc.On("Generate", mock.Anything, testUserID, "").Return(nil, apperr.Validation("Please provide a goal"))
	svc.On("Generate", mock.Anything, testUserID, "launch blog").
		Return([]model.Task{{ID: 1, Title: "Pick a platform"}, {ID: 2, Title: "Write first post"}}, nil)

	r := taskRouter(svc)

	w := send(r, http.MethodPost, "/api/tasks/generate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Please provide a goal"}`, w.Body.String())

	w = send(r, http.MethodPost, "/api/tasks/generate", `{"goal":"launch blog"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestTaskHandler_ListPassesFilters(t *testing.T) {
	svc := new(mockTaskService)
	svc.On("List", mock.Anything, testUserID, model.TaskFilter{Status: model.TaskCompleted, Goal: "fitness"}).
		Return([]model.Task{}, nil)

	w := send(taskRouter(svc), http.MethodGet, "/api/tasks?status=completed&goal=fitness", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"count":0,"tasks":[]}`, w.Body.String())
}

func TestRespondError_Retryable(t *testing.T) {
	r := newEngine()
	r.GET("/", func(c *gin.Context) {
		respondError(c, zap.NewNop(), apperr.Wrap(apperr.KindAdapterFailure, "Failed to sync emails", context.DeadlineExceeded))
	})

	w := send(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to sync emails","retryable":true}`, w.Body.String())
}

func TestQueryDate(t *testing.T) {
	var start, end *time.Time
	var err error
	r := newEngine()
	r.GET("/", func(c *gin.Context) {
		start, err = queryDate(c, "startDate", false)
		if err == nil {
			end, err = queryDate(c, "endDate", true)
		}
	})

	send(r, http.MethodGet, "/?startDate=2024-05-01&endDate=2024-05-31", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *start)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 999999999, time.UTC), *end)

	send(r, http.MethodGet, "/?endDate=2024-05-31T12:00:00Z", "")
	require.NoError(t, err)
	assert.Nil(t, start)
	assert.Equal(t, time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC), *end)

	send(r, http.MethodGet, "/?startDate=yesterday", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
