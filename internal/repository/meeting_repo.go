package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aimate/internal/model"
)

type MeetingRepository struct {
	db *pgxpool.Pool
}

func NewMeetingRepository(db *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{db: db}
}

const meetingColumns = `id, user_id, title, audio_file_url, transcription, summary, key_points,
	action_items, participants, date, duration, is_ai_generated, created_at, updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (*model.Meeting, error) {
	var m model.Meeting
	err := row.Scan(
		&m.ID, &m.UserID, &m.Title, &m.AudioFileURL, &m.Transcription, &m.Summary, &m.KeyPoints,
		&m.ActionItems, &m.Participants, &m.Date, &m.Duration, &m.IsAIGenerated, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if m.ActionItems == nil {
		m.ActionItems = []model.ActionItem{}
	}
	return &m, nil
}

func actionItems(items []model.ActionItem) []model.ActionItem {
	if items == nil {
		return []model.ActionItem{}
	}
	return items
}

func (r *MeetingRepository) List(ctx context.Context, userID int64) ([]model.Meeting, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE user_id = $1 ORDER BY date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meetings := []model.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

func (r *MeetingRepository) Get(ctx context.Context, id, userID int64) (*model.Meeting, error) {
	return scanMeeting(r.db.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *MeetingRepository) Create(ctx context.Context, m *model.Meeting) error {
	query := `
		INSERT INTO meetings (user_id, title, audio_file_url, transcription, summary, key_points,
		                      action_items, participants, date, duration, is_ai_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		m.UserID, m.Title, m.AudioFileURL, m.Transcription, m.Summary, nonNil(m.KeyPoints),
		actionItems(m.ActionItems), nonNil(m.Participants), m.Date, m.Duration, m.IsAIGenerated,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// Update 保存会议全部可变字段（包括 action_items）
func (r *MeetingRepository) Update(ctx context.Context, m *model.Meeting) error {
	query := `
		UPDATE meetings
		SET title = $3, audio_file_url = $4, transcription = $5, summary = $6, key_points = $7,
		    action_items = $8, participants = $9, date = $10, duration = $11, is_ai_generated = $12,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		m.ID, m.UserID, m.Title, m.AudioFileURL, m.Transcription, m.Summary, nonNil(m.KeyPoints),
		actionItems(m.ActionItems), nonNil(m.Participants), m.Date, m.Duration, m.IsAIGenerated,
	).Scan(&m.UpdatedAt)
	return notFound(err)
}

func (r *MeetingRepository) Delete(ctx context.Context, id, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM meetings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConvertActionItem 在一个事务里锁住会议行、插入任务并标记动作项已转换。
// newTask 根据会议和动作项构造待插入的任务。
func (r *MeetingRepository) ConvertActionItem(ctx context.Context, meetingID, userID int64, itemID string,
	newTask func(m *model.Meeting, item *model.ActionItem) *model.Task) (*model.Task, error) {
	var task *model.Task
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		m, err := scanMeeting(tx.QueryRow(ctx,
			`SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND user_id = $2 FOR UPDATE`, meetingID, userID))
		if err != nil {
			return err
		}
		idx := m.FindActionItem(itemID)
		if idx < 0 {
			return ErrActionItemNotFound
		}
		item := &m.ActionItems[idx]
		if item.ConvertedToTask {
			return ErrAlreadyConverted
		}

		task = newTask(m, item)
		if err := insertTaskRow(ctx, tx, task); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		item.ConvertedToTask = true
		_, err = tx.Exec(ctx,
			`UPDATE meetings SET action_items = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
			meetingID, userID, m.ActionItems)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
