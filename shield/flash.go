package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const flashCookie = "radlibs_flash"

// FlashMessage is a notice shown once on the next page.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash returns the flash message of the request, if any.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(flashKey).(*FlashMessage)
	return v
}

// Flash moves the flash cookie into the request context and clears it.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(flashCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

		raw, _ := url.QueryUnescape(c.Value)
		msg := &FlashMessage{Type: "error", Message: raw}
		if typ, text, ok := strings.Cut(raw, ":"); ok && (typ == "success" || typ == "error") {
			msg.Type, msg.Message = typ, text
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), flashKey, msg)))
	})
}

// SetFlash stores a flash message for the next request.
func SetFlash(w http.ResponseWriter, typ, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(typ + ":" + message),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
