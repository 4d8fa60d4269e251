// Package task 管理用户任务，以及从目标自动拆解任务
package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"aimate/internal/adapter/ai"
	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/pkg/logger"
	"aimate/pkg/metrics"
)

type Store interface {
	List(ctx context.Context, userID int64, f model.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, id, userID int64) (*model.Task, error)
	Create(ctx context.Context, t *model.Task) error
	CreateMany(ctx context.Context, tasks []*model.Task) error
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id, userID int64) error
}

// Planner 把一个目标拆成若干任务
type Planner interface {
	GenerateTasks(ctx context.Context, goal string) ([]ai.PlannedTask, error)
}

type Service struct {
	store   Store
	planner Planner
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store Store, planner Planner, logger *zap.Logger) *Service {
	return &Service{store: store, planner: planner, logger: logger, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Task")
	}
	return apperr.Internal(err)
}

func (s *Service) List(ctx context.Context, userID int64, f model.TaskFilter) ([]model.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("Invalid task status")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, apperr.Validation("Invalid task priority")
	}
	tasks, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Task, error) {
	t, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

type CreateInput struct {
	Title       string
	Description string
	Goal        *string
	Priority    model.TaskPriority
	Status      model.TaskStatus
	DueDate     *time.Time
	Tags        []string
}

func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("Please provide a task title")
	}
	t := &model.Task{
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Goal:        in.Goal,
		Priority:    in.Priority,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Tags:        in.Tags,
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if !t.Priority.Valid() {
		return nil, apperr.Validation("Invalid task priority")
	}
	if !t.Status.Valid() {
		return nil, apperr.Validation("Invalid task status")
	}
	if t.Status == model.TaskCompleted {
		now := s.now()
		t.CompletedAt = &now
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// Update 应用部分更新；每次把 status 设为 completed 都会刷新 completedAt，
// 改回其他状态时保留原来的时间戳
func (s *Service) Update(ctx context.Context, userID, id int64, patch model.TaskPatch) (*model.Task, error) {
	t, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.Validation("Please provide a task title")
		}
		t.Title = title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Goal != nil {
		t.Goal = patch.Goal
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, apperr.Validation("Invalid task priority")
		}
		t.Priority = *patch.Priority
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Validation("Invalid task status")
		}
		t.Status = *patch.Status
		if t.Status == model.TaskCompleted {
			now := s.now()
			t.CompletedAt = &now
		}
	}
	if patch.ClearDue {
		t.DueDate = nil
	} else if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.Tags != nil {
		t.Tags = *patch.Tags
	}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return notFound(err)
	}
	return nil
}

// Generate 让 AI 拆解目标，并一次性保存全部生成的任务
func (s *Service) Generate(ctx context.Context, userID int64, goal string) ([]model.Task, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, apperr.Validation("Please provide a goal")
	}
	log := logger.WithUser(ctx, s.logger, userID)

	planned, err := s.planner.GenerateTasks(ctx, goal)
	if err != nil {
		log.Warn("task generation failed", zap.Error(err))
		return nil, err
	}

	now := s.now()
	batch := make([]*model.Task, 0, len(planned))
	for _, p := range planned {
		days := float64(p.EstimatedDays)
		if days <= 0 {
			days = 1
		}
		due := now.Add(time.Duration(days * float64(24*time.Hour)))
		priority := model.TaskPriority(strings.ToLower(strings.TrimSpace(p.Priority)))
		if !priority.Valid() {
			priority = model.PriorityMedium
		}
		g := goal
		batch = append(batch, &model.Task{
			UserID:      userID,
			Title:       p.Title,
			Description: p.Description,
			Goal:        &g,
			Priority:    priority,
			Status:      model.TaskPending,
			DueDate:     &due,
			AIGenerated: true,
		})
	}

	if err := s.store.CreateMany(ctx, batch); err != nil {
		return nil, apperr.Internal(err)
	}
	metrics.IncrementTaskGeneration("ai", len(batch))
	log.Info("tasks generated", zap.Int("count", len(batch)))

	tasks := make([]model.Task, len(batch))
	for i, t := range batch {
		tasks[i] = *t
	}
	return tasks, nil
}
