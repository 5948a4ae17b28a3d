package ratelimit

import (
	"context"
	"sync"
	"time"
)

// 保持するキー数がこれを超えたら期限切れの記録を掃除する
const sweepThreshold = 1024

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Memory はプロセス内のマップで失敗回数を管理する Limiter です。
// 単一インスタンスでの運用向けです。
type Memory struct {
	policy   Policy
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// MemoryOption は Memory の設定を変更します。
type MemoryOption func(*Memory)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory は Memory を作成します。
func NewMemory(policy Policy, opts ...MemoryOption) *Memory {
	m := &Memory{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check は Limiter を実装します。
func (m *Memory) Check(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

// Fail は Limiter を実装します。
func (m *Memory) Fail(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	if len(m.attempts) >= sweepThreshold {
		m.sweep(now)
	}

	state, ok := m.attempts[key]
	if !ok || m.expired(state, now) {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.policy.MaxAttempts {
		state.lockedUntil = now.Add(m.policy.LockDuration)
		state.count = m.policy.MaxAttempts
	}

	remaining := m.policy.MaxAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset は Limiter を実装します。
func (m *Memory) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

// expired は記録を新しく数え直すべきかを返します。
// ロックが明けた記録も数え直しの対象です。
func (m *Memory) expired(state *attemptState, now time.Time) bool {
	if !state.lockedUntil.IsZero() {
		return !now.Before(state.lockedUntil)
	}
	return now.Sub(state.firstAttempt) > m.policy.Window
}

func (m *Memory) sweep(now time.Time) {
	for key, state := range m.attempts {
		if m.expired(state, now) {
			delete(m.attempts, key)
		}
	}
}
