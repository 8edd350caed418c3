package middleware

import "net/http"

// NewCORSMiddleware は管理画面のオリジンに対するCORSミドルウェアを返す。
// 認証はBearerトークンのみのため、Cookieを伴うリクエストは許可しない。
// allowedOriginが空の場合はCORSヘッダーを付与せず、そのまま次のハンドラーに渡す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowedOrigin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "86400")

			// プリフライトは認証より前に204で返す
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
