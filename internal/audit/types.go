// Package audit はログイン試行の記録（監査ログ）を提供します。
//
// 試行は Asynq のタスクとして投入され、ワーカーが Redis のリストに保存します。
// ログインのレスポンスは記録の成否を待ちません。
package audit

import "time"

// Event はログイン試行1回分の監査レコードです。
type Event struct {
	ID         string    `json:"id"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	OccurredAt time.Time `json:"occurredAt"`
}
