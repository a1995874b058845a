package options

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/radicalgizmos-matt/li-rad-libs/kit"
	"github.com/radicalgizmos-matt/li-rad-libs/shield"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

//go:embed templates/options.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/options.html"))

// HTTPOptions configures Handler.
type HTTPOptions struct {
	// User and PasswordHash (bcrypt) gate everything but /health when both
	// are set.
	User         string
	PasswordHash string
}

// Handler serves the options page, the JSON API and the health check.
func (s *Service) Handler(opts HTTPOptions) http.Handler {
	eps := s.endpoints()

	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if opts.User != "" && opts.PasswordHash != "" {
			r.Use(BasicAuth(opts.User, opts.PasswordHash))
		}

		r.Get("/", s.handlePage)
		r.Post("/", func(w http.ResponseWriter, r *http.Request) { s.handleForm(w, r, eps.save) })

		r.Get("/api/substitutions", func(w http.ResponseWriter, r *http.Request) {
			serveEndpoint(w, r, eps.list, nil)
		})
		r.Put("/api/substitutions", func(w http.ResponseWriter, r *http.Request) {
			serveEndpoint(w, r, eps.save, &saveRequest{})
		})
		r.Post("/api/preview", func(w http.ResponseWriter, r *http.Request) {
			serveEndpoint(w, r, eps.preview, &previewRequest{})
		})
		r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			entries, err := s.History(r.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"saves": entries})
		})
	})
	return r
}

// serveEndpoint decodes the JSON body into req (when non-nil), runs ep and
// writes its response. Validation failures answer 422 with the problems.
func serveEndpoint(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	if req != nil {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
	}
	resp, err := ep(r.Context(), req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    ve.Error(),
				"problems": ve.Problems,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type ruleView struct {
	Index  int
	Number int
	Form   Form
	Open   bool
	Errors map[string]string
}

type pageData struct {
	Rules    []ruleView
	Count    int
	Problems []Problem
	Flash    *shield.FlashMessage
}

func (s *Service) handlePage(w http.ResponseWriter, r *http.Request) {
	rules, err := s.List(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("options: load substitutions", "error", err)
		http.Error(w, "could not load substitutions", http.StatusInternalServerError)
		return
	}
	forms := make([]Form, len(rules))
	for i, rule := range rules {
		forms[i] = FormFromRule(rule)
	}
	s.render(w, r, http.StatusOK, forms, nil)
}

// handleForm runs the page's buttons: "add" and "delete:N" edit the draft
// and re-render it; "save" validates and persists, then redirects.
func (s *Service) handleForm(w http.ResponseWriter, r *http.Request, save kit.Endpoint) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	forms := formsFromRequest(r)
	op := r.PostFormValue("op")

	switch {
	case op == "add":
		forms = append(forms, FormFromRule(Blank()))
		s.render(w, r, http.StatusOK, forms, nil)

	case strings.HasPrefix(op, "delete:"):
		i, err := strconv.Atoi(strings.TrimPrefix(op, "delete:"))
		if err != nil || i < 0 || i >= len(forms) {
			http.Error(w, ErrIndex.Error(), http.StatusBadRequest)
			return
		}
		forms = append(forms[:i], forms[i+1:]...)
		s.render(w, r, http.StatusOK, forms, nil)

	case op == "save":
		rules := make(substitute.RuleSet, len(forms))
		for i, f := range forms {
			rules[i] = f.Rule()
		}
		if _, err := save(r.Context(), &saveRequest{Substitutions: rules}); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				s.render(w, r, http.StatusUnprocessableEntity, forms, ve)
				return
			}
			shield.GetLogger(r.Context()).Error("options: save substitutions", "error", err)
			http.Error(w, "could not save substitutions", http.StatusInternalServerError)
			return
		}
		shield.SetFlash(w, "success", "Saved")
		http.Redirect(w, r, "/", http.StatusSeeOther)

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Service) render(w http.ResponseWriter, r *http.Request, status int, forms []Form, ve *ValidationError) {
	data := pageData{Count: len(forms), Flash: shield.GetFlash(r.Context())}
	for i, f := range forms {
		v := ruleView{Index: i, Number: i + 1, Form: f, Open: !f.Collapsed(), Errors: map[string]string{}}
		if ve != nil {
			for _, p := range ve.For(i) {
				v.Errors[p.Field] = p.Message
				v.Open = true
			}
		}
		data.Rules = append(data.Rules, v)
	}
	if ve != nil {
		data.Problems = ve.For(-1)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, data); err != nil {
		shield.GetLogger(r.Context()).Error("options: render page", "error", err)
	}
}

func formsFromRequest(r *http.Request) []Form {
	n, _ := strconv.Atoi(r.PostFormValue("count"))
	n = max(0, min(n, MaxRules))
	forms := make([]Form, 0, n)
	for i := range n {
		field := func(name string) string { return r.PostFormValue(name + "-" + strconv.Itoa(i)) }
		forms = append(forms, Form{
			Probability:     field("probability"),
			Target:          field("target"),
			CaseInsensitive: field("case") != "",
			WholeWord:       field("whole") != "",
			Replacements:    strings.ReplaceAll(field("replacements"), "\r\n", "\n"),
		})
	}
	return forms
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
