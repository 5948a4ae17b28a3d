package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTTL はセッショントークンの有効期間です（固定）。
const SessionTTL = 24 * time.Hour

// Claims はセッショントークンに含まれるクレームです。
// 利用者の識別は行わず、「認証済みかどうか」だけを表します。
type Claims struct {
	Authenticated bool `json:"authenticated"`
	jwt.RegisteredClaims
}

// Codec はセッショントークンの発行と検証を行います。
// 生成後は状態を変更しないため、複数のゴルーチンから同時に利用できます。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption は Codec の設定を変更します。
type CodecOption func(*Codec)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は署名鍵を受け取って Codec を作成します。
func NewCodec(secret string, opts ...CodecOption) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue は authenticated=true のクレームを HS256 で署名したトークンを返します。
// 呼び出し前にパスワード検証が済んでいることが前提です。
func (c *Codec) Issue() (string, error) {
	token, _, err := c.issue()
	return token, err
}

func (c *Codec) issue() (string, Claims, error) {
	// NumericDate は秒精度なので、発行時刻を秒で切り捨ててから期限を決める
	issuedAt := c.now().Truncate(time.Second)

	claims := Claims{
		Authenticated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(SessionTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Verify はトークンの署名と有効期限を検証し、成功時にクレームを返します。
//
// 形式不正・署名不一致・期限切れ・アルゴリズム違いはすべて false になり、
// 失敗理由は呼び出し側に渡しません。
func (c *Codec) Verify(token string) (Claims, bool) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, false
	}
	return claims, true
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) {
	return c.secret, nil
}

// CSRFToken はセッションに紐づく CSRF トークンを返します。
// トークン ID（jti）の HMAC なので、サーバー側に状態を持たずに検証できます。
func (c *Codec) CSRFToken(claims Claims) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte("csrf:" + claims.ID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCSRF は received がセッションの CSRF トークンと一致するかを定数時間で比較します。
func (c *Codec) VerifyCSRF(claims Claims, received string) bool {
	if claims.ID == "" || received == "" {
		return false
	}
	expected := c.CSRFToken(claims)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
