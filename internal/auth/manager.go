package auth

import (
	"context"
	"log"
	"time"

	"github.com/yourusername/dashboard-gate/internal/ratelimit"
)

// ContextClaimsKey は、検証済みのセッションクレームをハンドラー間で共有するためのキーです。
const ContextClaimsKey = "auth.claims"

// CSRFHeader は状態を変更するリクエストに付与する CSRF トークンのヘッダー名です。
const CSRFHeader = "X-CSRF-Token"

// Attempt はログイン試行1回分の記録です。
type Attempt struct {
	IP         string
	UserAgent  string
	Succeeded  bool
	OccurredAt time.Time
}

// AttemptRecorder はログイン試行を記録します。
// 記録の失敗はログイン結果に影響させないため、error は返しません。
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(context.Context, Attempt) {}

// Manager は認証処理の HTTP 側をまとめた構造体です。
type Manager struct {
	verifier *Verifier
	codec    *Codec
	cookie   CookieOptions
	limiter  ratelimit.Limiter
	recorder AttemptRecorder
	logger   *log.Logger
	now      func() time.Time
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithLimiter はログイン試行の制限方法を差し替えます。
func WithLimiter(l ratelimit.Limiter) Option {
	return func(m *Manager) {
		m.limiter = l
	}
}

// WithRecorder はログイン試行の記録先を設定します。
func WithRecorder(r AttemptRecorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger はログ出力先を設定します。
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager は認証マネージャーを作成します。
func NewManager(verifier *Verifier, codec *Codec, cookie CookieOptions, opts ...Option) *Manager {
	m := &Manager{
		verifier: verifier,
		codec:    codec,
		cookie:   cookie,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limiter == nil {
		m.limiter = ratelimit.NewMemory(ratelimit.DefaultPolicy())
	}
	if m.recorder == nil {
		m.recorder = noopRecorder{}
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}
