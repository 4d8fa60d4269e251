package outbox

import (
	"context"
	"fmt"

	"aimate/pkg/mq"
)

// ReplayService 手动重放失败事件
type ReplayService struct {
	repo      *Repository
	publisher mq.EventPublisher
}

func NewReplayService(repo *Repository, publisher mq.EventPublisher) *ReplayService {
	return &ReplayService{repo: repo, publisher: publisher}
}

// ReplayEvent 立即重新投递指定事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}

	if err := publishEvent(ctx, s.publisher, event); err != nil {
		if markErr := s.repo.MarkAsFailed(ctx, eventID, event.RetryCount+1); markErr != nil {
			return fmt.Errorf("%w (mark error: %v)", err, markErr)
		}
		return err
	}
	return s.repo.MarkAsSent(ctx, eventID)
}

// ReplayFailedEvents 重放最近 limit 个失败事件，返回成功数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			continue
		}
		successCount++
	}
	return successCount, nil
}
