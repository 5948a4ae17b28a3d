package auth

import "net/http"

// SessionCookieName はセッショントークンを保持する Cookie 名です。
const SessionCookieName = "dashboard_session"

// CookieOptions はセッション Cookie に付与する属性です。
type CookieOptions struct {
	Name     string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Path     string
	MaxAge   int // 秒
}

// SessionCookieOptions は実行環境に応じた Cookie 属性を返します。
// Secure 属性は本番相当の環境でのみ付与します。有効期限は SessionTTL と揃えています。
func SessionCookieOptions(production bool) CookieOptions {
	return CookieOptions{
		Name:     SessionCookieName,
		HTTPOnly: true,
		Secure:   production,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
	}
}

// Cookie は value を値に持つ Cookie を組み立てます。
func (o CookieOptions) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

// Expired はブラウザに Cookie を削除させるための Cookie を返します。
func (o CookieOptions) Expired() *http.Cookie {
	c := o.Cookie("")
	c.MaxAge = -1
	return c
}
