package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/dashboard-gate/internal/auth"
)

const (
	taskTypeAttempt = "auth:attempt"
	queueName       = "audit"
)

type eventWriter interface {
	Append(ctx context.Context, event *Event) error
}

// Manager は監査レコードの投入と保存ワーカーを担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  eventWriter
	logger *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, logger *log.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
	}
	mux.HandleFunc(taskTypeAttempt, manager.handleAttemptTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("audit: asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// RecordAttempt はログイン試行をキューに投入します。auth.AttemptRecorder を満たします。
// 投入に失敗してもログに残すだけで呼び出し元には返しません。
func (m *Manager) RecordAttempt(ctx context.Context, attempt auth.Attempt) {
	if err := m.enqueue(ctx, newEvent(attempt)); err != nil {
		m.logger.Printf("audit: failed to enqueue login attempt ip=%s: %v", attempt.IP, err)
	}
}

func (m *Manager) enqueue(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeAttempt, body, asynq.Queue(queueName))
	_, err = m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	return err
}

func (m *Manager) handleAttemptTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.ID == "" {
		return fmt.Errorf("missing id in payload: %w", asynq.SkipRetry)
	}
	return m.store.Append(ctx, &event)
}

func newEvent(attempt auth.Attempt) *Event {
	return &Event{
		ID:         uuid.NewString(),
		IP:         attempt.IP,
		UserAgent:  attempt.UserAgent,
		Succeeded:  attempt.Succeeded,
		OccurredAt: attempt.OccurredAt,
	}
}
