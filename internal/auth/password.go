// Package auth はダッシュボードの認証機能（パスワード検証・セッショントークン・Cookie方針）を提供します。
package auth

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

// Verifier は共有パスワードを保存済みハッシュと照合します。
type Verifier struct {
	hash   []byte
	logger *log.Logger
}

// NewVerifier は bcrypt ハッシュを受け取って Verifier を作成します。
// hash が空の場合、すべての照合が失敗します。
func NewVerifier(hash string, logger *log.Logger) *Verifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Verifier{
		hash:   []byte(hash),
		logger: logger,
	}
}

// VerifyPassword は candidate が保存済みハッシュと一致する場合に true を返します。
//
// ハッシュ未設定・不一致は false を返し、error は返しません。
// 保存済みハッシュが壊れている等の想定外の失敗のみ error を返します。
func (v *Verifier) VerifyPassword(candidate string) (bool, error) {
	if len(v.hash) == 0 {
		v.logger.Printf("auth: DASHBOARD_PASSWORD_HASH is not configured, rejecting login")
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword(v.hash, []byte(candidate))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		// 72バイトを超えるパスワードはハッシュ化できないので一致し得ない
		return false, nil
	default:
		return false, fmt.Errorf("compare password hash: %w", err)
	}
}
