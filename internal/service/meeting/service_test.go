package meeting

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/adapter/ai"
	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/repository"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[int64]*model.Meeting
	nextID    int64
	updates   int
	created   []*model.Task
	insertErr error
}

func (m *memStore) List(_ context.Context, userID int64) ([]model.Meeting, error) {
	var out []model.Meeting
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id, userID int64) (*model.Meeting, error) {
	row, ok := m.rows[id]
	if !ok || row.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *row
	cp.ActionItems = append([]model.ActionItem(nil), row.ActionItems...)
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, row *model.Meeting) error {
	m.nextID++
	row.ID = m.nextID
	cp := *row
	m.rows[row.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, row *model.Meeting) error {
	m.updates++
	cp := *row
	cp.ActionItems = append([]model.ActionItem(nil), row.ActionItems...)
	m.rows[row.ID] = &cp
	return nil
}

func (m *memStore) Delete(ctx context.Context, id, userID int64) error {
	if _, err := m.Get(ctx, id, userID); err != nil {
		return err
	}
	delete(m.rows, id)
	return nil
}

// ConvertActionItem 持锁完成读改写，任务插入失败时不修改会议
func (m *memStore) ConvertActionItem(ctx context.Context, meetingID, userID int64, itemID string,
	newTask func(*model.Meeting, *model.ActionItem) *model.Task) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.Get(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}
	idx := row.FindActionItem(itemID)
	if idx < 0 {
		return nil, repository.ErrActionItemNotFound
	}
	if row.ActionItems[idx].ConvertedToTask {
		return nil, repository.ErrAlreadyConverted
	}
	t := newTask(row, &row.ActionItems[idx])
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	t.ID = int64(len(m.created) + 1)
	m.created = append(m.created, t)
	row.ActionItems[idx].ConvertedToTask = true
	m.rows[row.ID] = row
	return t, nil
}

type fakeNotes struct {
	summary     *ai.MeetingNotes
	summaryErr  error
	description *ai.MeetingNotes
}

func (f *fakeNotes) SummarizeTranscript(context.Context, string) (*ai.MeetingNotes, error) {
	return f.summary, f.summaryErr
}

func (f *fakeNotes) DescribeMeeting(context.Context, string, []string) (*ai.MeetingNotes, error) {
	return f.description, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type recordingPublisher struct{ payloads []any }

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload any) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type fixture struct {
	svc         *Service
	store       *memStore
	notes       *fakeNotes
	transcriber *fakeTranscriber
	pub         *recordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		store:       &memStore{rows: map[int64]*model.Meeting{}},
		notes:       &fakeNotes{},
		transcriber: &fakeTranscriber{text: "we agreed to ship on friday and alice will write the release notes"},
		pub:         &recordingPublisher{},
	}
	f.svc = NewService(f.store, f.notes, f.transcriber, f.pub, zap.NewNop())
	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
	return f
}

func TestCreate(t *testing.T) {
	f := newFixture()
	m, err := f.svc.Create(context.Background(), 1, CreateInput{Title: "Standup", Duration: 15})
	require.NoError(t, err)
	assert.Equal(t, []string{}, m.Participants)
	assert.False(t, m.IsAIGenerated)
	assert.False(t, m.Date.IsZero())
	assert.Equal(t, 15, m.Duration)

	_, err = f.svc.Create(context.Background(), 1, CreateInput{})
	assert.Equal(t, "Please provide a meeting title", apperr.From(err).Message)
}

func TestCreateWithAI_RoundRobinAssignees(t *testing.T) {
	f := newFixture()
	f.notes.description = &ai.MeetingNotes{
		Summary:   "Plan the quarter",
		KeyPoints: []string{"goals"},
		ActionItems: []ai.NoteItem{
			{Description: "a"}, {Description: "b"}, {Description: "c"},
		},
	}

	m, err := f.svc.CreateWithAI(context.Background(), 1, CreateInput{Title: "Q3", Participants: []string{"Ann", "Bo"}})
	require.NoError(t, err)
	assert.True(t, m.IsAIGenerated)
	require.Len(t, m.ActionItems, 3)
	assert.Equal(t, "Ann", m.ActionItems[0].AssignedTo)
	assert.Equal(t, "Bo", m.ActionItems[1].AssignedTo)
	assert.Equal(t, "Ann", m.ActionItems[2].AssignedTo)
	assert.Equal(t, "item-1", m.ActionItems[0].ID)
	assert.Equal(t, model.ActionPending, m.ActionItems[0].Status)

	m, err = f.svc.CreateWithAI(context.Background(), 1, CreateInput{Title: "Solo"})
	require.NoError(t, err)
	assert.Empty(t, m.ActionItems[0].AssignedTo)
}

func TestUploadAudio(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, 1, CreateInput{Title: "Release"})
	require.NoError(t, err)

	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.notes.summary = &ai.MeetingNotes{
		Summary:     "Shipping friday",
		KeyPoints:   []string{"ship"},
		ActionItems: []ai.NoteItem{{Description: "write notes", AssignedTo: "alice", DueDate: &due}},
	}

	got, err := f.svc.UploadAudio(ctx, 1, m.ID, Audio{Data: []byte("RIFF"), Filename: "my call.mp3", MimeType: "audio/mpeg"})
	require.NoError(t, err)
	assert.Equal(t, f.transcriber.text, got.Transcription)
	assert.Equal(t, "Shipping friday", got.Summary)
	assert.Equal(t, "my_call.mp3", got.AudioFileURL)
	require.Len(t, got.ActionItems, 1)
	assert.Equal(t, "alice", got.ActionItems[0].AssignedTo)
	assert.Equal(t, &due, got.ActionItems[0].DueDate)

	stored := f.store.rows[m.ID]
	assert.Equal(t, "Shipping friday", stored.Summary)

	require.Len(t, f.pub.payloads, 1)
	payload := f.pub.payloads[0].(mqcontracts.MeetingTranscribedPayload)
	assert.True(t, payload.Summarized)
	assert.Equal(t, 1, payload.ActionItems)
}

func TestUploadAudio_SummaryFailureKeepsTranscription(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, 1, CreateInput{Title: "Release"})
	require.NoError(t, err)
	f.notes.summaryErr = apperr.New(apperr.KindAdapterFailure, "AI service temporarily unavailable")

	got, err := f.svc.UploadAudio(ctx, 1, m.ID, Audio{Data: []byte("x"), Filename: "a.wav", MimeType: "audio/wav"})
	require.Error(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusBadGateway, apperr.From(err).Kind.Status())
	assert.Equal(t, f.transcriber.text, f.store.rows[m.ID].Transcription)
	assert.Empty(t, f.store.rows[m.ID].Summary)
}

func TestUploadAudio_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, 1, CreateInput{Title: "Release"})
	require.NoError(t, err)

	_, err = f.svc.UploadAudio(ctx, 2, m.ID, Audio{Data: []byte("x"), Filename: "a.mp3", MimeType: "audio/mpeg"})
	assert.Equal(t, http.StatusNotFound, apperr.From(err).Kind.Status())

	_, err = f.svc.UploadAudio(ctx, 1, m.ID, Audio{Filename: "a.mp3", MimeType: "audio/mpeg"})
	assert.Equal(t, "Audio file is empty or corrupted", apperr.From(err).Message)

	_, err = f.svc.UploadAudio(ctx, 1, m.ID, Audio{Data: []byte("x"), Filename: "a.txt", MimeType: "text/plain"})
	assert.Equal(t, http.StatusBadRequest, apperr.From(err).Kind.Status())
	assert.Zero(t, f.transcriber.calls)
}

func TestConvertActionItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := &model.Meeting{
		UserID: 1,
		Title:  "Retro",
		ActionItems: []model.ActionItem{
			{ID: "ai-1", Description: "Fix flaky test", DueDate: &due, Status: model.ActionPending},
		},
	}
	require.NoError(t, f.store.Create(ctx, m))

	task, err := f.svc.ConvertActionItem(ctx, 1, m.ID, "ai-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix flaky test", task.Title)
	assert.Equal(t, "Action item from meeting: Retro", task.Description)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, &due, task.DueDate)
	assert.True(t, f.store.rows[m.ID].ActionItems[0].ConvertedToTask)

	_, err = f.svc.ConvertActionItem(ctx, 1, m.ID, "ai-1")
	assert.Equal(t, http.StatusConflict, apperr.From(err).Kind.Status())
	assert.Len(t, f.store.created, 1)

	_, err = f.svc.ConvertActionItem(ctx, 1, m.ID, "missing")
	assert.Equal(t, "Action item not found", apperr.From(err).Message)

	_, err = f.svc.ConvertActionItem(ctx, 2, m.ID, "ai-1")
	assert.Equal(t, "Meeting not found", apperr.From(err).Message)
}

func TestConvertActionItem_ConcurrentConvertsCreateOneTask(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := &model.Meeting{UserID: 1, Title: "Planning", ActionItems: []model.ActionItem{{ID: "ai-1", Description: "Book room"}}}
	require.NoError(t, f.store.Create(ctx, m))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ConvertActionItem(ctx, 1, m.ID, "ai-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, http.StatusConflict, apperr.From(err).Kind.Status())
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.store.created, 1)
}

func TestConvertActionItem_InsertFailureLeavesItemOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := &model.Meeting{UserID: 1, Title: "Planning", ActionItems: []model.ActionItem{{ID: "ai-1", Description: "Book room"}}}
	require.NoError(t, f.store.Create(ctx, m))
	f.store.insertErr = fmt.Errorf("connection reset")

	_, err := f.svc.ConvertActionItem(ctx, 1, m.ID, "ai-1")
	assert.Equal(t, http.StatusInternalServerError, apperr.From(err).Kind.Status())
	assert.False(t, f.store.rows[m.ID].ActionItems[0].ConvertedToTask)
	assert.Empty(t, f.store.created)
}

func TestUpdate_ActionItemsGetIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, 1, CreateInput{Title: "Sync"})
	require.NoError(t, err)

	items := []model.ActionItem{{Description: "call vendor"}}
	got, err := f.svc.Update(ctx, 1, m.ID, MeetingPatch{ActionItems: &items})
	require.NoError(t, err)
	assert.Equal(t, "item-1", got.ActionItems[0].ID)
	assert.Equal(t, model.ActionPending, got.ActionItems[0].Status)

	bad := []model.ActionItem{{Description: "x", Status: "later"}}
	_, err = f.svc.Update(ctx, 1, m.ID, MeetingPatch{ActionItems: &bad})
	assert.Equal(t, http.StatusBadRequest, apperr.From(err).Kind.Status())
}
