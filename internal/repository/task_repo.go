package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/model"
	"aimate/pkg/outbox"
)

type TaskRepository struct {
	db  *pgxpool.Pool
	box *outbox.Repository
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithOutbox 批量创建任务时在同一事务中写入 task.bulk_created 事件
func (r *TaskRepository) WithOutbox(box *outbox.Repository) *TaskRepository {
	r.box = box
	return r
}

const taskColumns = `id, user_id, title, description, goal, priority, status, due_date,
	completed_at, ai_generated, tags, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Goal, &t.Priority, &t.Status, &t.DueDate,
		&t.CompletedAt, &t.AIGenerated, &t.Tags, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// List 按创建时间倒序返回用户任务
func (r *TaskRepository) List(ctx context.Context, userID int64, f model.TaskFilter) ([]model.Task, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Goal != "" {
		args = append(args, f.Goal)
		where = append(where, fmt.Sprintf("goal = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Get(ctx context.Context, id, userID int64) (*model.Task, error) {
	return scanTask(r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, userID))
}

const insertTask = `
	INSERT INTO tasks (user_id, title, description, goal, priority, status, due_date, completed_at, ai_generated, tags)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id, created_at, updated_at
`

func insertTaskRow(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, t *model.Task) error {
	return q.QueryRow(ctx, insertTask,
		t.UserID, t.Title, t.Description, t.Goal, t.Priority, t.Status, t.DueDate, t.CompletedAt,
		t.AIGenerated, nonNil(t.Tags),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	return insertTaskRow(ctx, r.db, t)
}

// CreateMany 在一个事务里插入全部任务
func (r *TaskRepository) CreateMany(ctx context.Context, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, t := range tasks {
			if err := insertTaskRow(ctx, tx, t); err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
		}
		if r.box == nil {
			return nil
		}

		payload := mqcontracts.TaskBulkCreatedPayload{UserID: tasks[0].UserID}
		for _, t := range tasks {
			payload.Tasks = append(payload.Tasks, mqcontracts.TaskItem{TaskID: t.ID, Title: t.Title, Priority: string(t.Priority), DueDate: t.DueDate})
		}
		if t := tasks[0]; t.Goal != nil {
			payload.Goal = *t.Goal
		}
		body, err := marshalPayload(payload)
		if err != nil {
			return err
		}
		return r.box.InsertEvent(ctx, tx, &outbox.Event{
			RoutingKey: mqcontracts.RoutingTaskBulkCreated,
			Payload:    body,
			TraceID:    traceID(ctx),
			Status:     outbox.StatusPending,
		})
	})
}

// Update 保存任务的可变字段
func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, goal = $5, priority = $6, status = $7,
		    due_date = $8, completed_at = $9, tags = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, t.Goal, t.Priority, t.Status,
		t.DueDate, t.CompletedAt, nonNil(t.Tags),
	).Scan(&t.UpdatedAt)
	return notFound(err)
}

func (r *TaskRepository) Delete(ctx context.Context, id, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
