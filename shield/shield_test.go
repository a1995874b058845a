package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/radicalgizmos-matt/li-rad-libs/kit"
)

func router(h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	for _, mw := range Stack(nil) {
		r.Use(mw)
	}
	r.Get("/", h)
	r.Post("/", h)
	return r
}

func TestStack_HeadersAndRequestID(t *testing.T) {
	var gotID, gotTransport string
	h := router(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotTransport = kit.GetTransport(r.Context())
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d", rec.Code)
	}
	if !strings.HasPrefix(gotID, "req_") || rec.Header().Get("X-Request-ID") != gotID {
		t.Fatalf("request id = %q, header = %q", gotID, rec.Header().Get("X-Request-ID"))
	}
	if gotTransport != "http" {
		t.Fatalf("transport = %q", gotTransport)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" || !strings.Contains(rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'") {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("target=aaaaaaaaaaaaaaaa"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	set := httptest.NewRecorder()
	SetFlash(set, "success", "Saved")
	cookie := set.Result().Cookies()[0]

	var got *FlashMessage
	h := router(func(w http.ResponseWriter, r *http.Request) {
		got = GetFlash(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got == nil || got.Type != "success" || got.Message != "Saved" {
		t.Fatalf("flash = %+v", got)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Fatalf("flash cookie not cleared: %+v", cleared)
	}
}

func TestFlash_Absent(t *testing.T) {
	h := router(func(w http.ResponseWriter, r *http.Request) {
		if GetFlash(r.Context()) != nil {
			t.Error("unexpected flash")
		}
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
