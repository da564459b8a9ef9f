// Package web serves the browser-facing pages: the public landing and login
// pages, and the protected application shell with its nested pages.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"appshell/internal/auth"
	"appshell/internal/models"
	"appshell/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const DefaultAppName = "appshell"

// ProjectLister is the read side the projects page needs.
type ProjectLister interface {
	List(ctx context.Context, owner uuid.UUID, params store.ListParams) ([]models.Project, error)
}

type navItem struct {
	Href   string
	Label  string
	Active bool
}

var shellNav = []navItem{
	{Href: "/dashboard", Label: "Overview"},
	{Href: "/dashboard/projects", Label: "Projects"},
}

type pageData struct {
	AppName       string
	Title         string
	LoginPath     string
	User          *auth.User
	Nav           []navItem
	Error         string
	Next          string
	Email         string
	PasswordLogin bool
	Projects      []models.Project
}

// Pages renders the HTML routes.
type Pages struct {
	provider  auth.Provider
	passwords auth.PasswordAuthenticator
	projects  ProjectLister
	loginPath string
	secure    bool
	appName   string
	logger    *zap.Logger
	tmpl      map[string]*template.Template
}

type Config struct {
	Provider auth.Provider
	// Passwords enables the password form on the login page. Nil when the
	// provider cannot sign users in directly.
	Passwords    auth.PasswordAuthenticator
	Projects     ProjectLister
	LoginPath    string
	SecureCookie bool
	AppName      string
	Logger       *zap.Logger
}

func New(cfg Config) (*Pages, error) {
	if cfg.Provider == nil {
		return nil, errors.New("web: provider is required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pages{
		provider:  cfg.Provider,
		passwords: cfg.Passwords,
		projects:  cfg.Projects,
		loginPath: cfg.LoginPath,
		secure:    cfg.SecureCookie,
		appName:   cfg.AppName,
		logger:    cfg.Logger,
		tmpl:      make(map[string]*template.Template),
	}

	// Each page is parsed together with the frame it renders into.
	pages := map[string]string{
		"landing":   "public",
		"login":     "public",
		"dashboard": "layout",
		"projects":  "layout",
	}
	for page, frame := range pages {
		t, err := template.ParseFS(templateFS, "templates/"+frame+".html", "templates/"+page+".html")
		if err != nil {
			return nil, err
		}
		p.tmpl[page] = t.Lookup(frame)
	}
	return p, nil
}

// Routes registers the pages on r. protected runs after the session gate on
// the shell subtree, e.g. to pin a database connection to the user.
func (p *Pages) Routes(r chi.Router, protected ...func(http.Handler) http.Handler) {
	r.Get("/", p.landing)
	r.Get(p.loginPath, p.loginForm)
	r.Post(p.loginPath, p.login)
	r.Post("/logout", p.logout)

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(auth.RequireSession(p.provider, p.loginPath))
		r.Use(protected...)
		r.Get("/", p.dashboard)
		r.Get("/projects", p.projectsPage)
	})
}

func (p *Pages) landing(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusOK, "landing", p.data(r, "Home"))
}

func (p *Pages) loginForm(w http.ResponseWriter, r *http.Request) {
	d := p.data(r, "Sign in")
	d.Next = loginTarget(r.URL.Query().Get("next"))
	p.render(w, http.StatusOK, "login", d)
}

func (p *Pages) login(w http.ResponseWriter, r *http.Request) {
	d := p.data(r, "Sign in")
	if err := r.ParseForm(); err != nil {
		d.Error = "Invalid form submission."
		p.render(w, http.StatusBadRequest, "login", d)
		return
	}
	d.Next = loginTarget(r.PostForm.Get("next"))
	d.Email = strings.TrimSpace(r.PostForm.Get("email"))

	if p.passwords == nil {
		d.Error = "Password sign-in is not available."
		p.render(w, http.StatusNotFound, "login", d)
		return
	}

	password := r.PostForm.Get("password")
	if d.Email == "" || password == "" {
		d.Error = "Email and password are required."
		p.render(w, http.StatusBadRequest, "login", d)
		return
	}

	s, err := p.passwords.SignInWithPassword(r.Context(), d.Email, password)
	if err != nil {
		status := http.StatusBadGateway
		d.Error = "Sign-in failed. Please try again."
		if errors.Is(err, auth.ErrInvalidSession) {
			status = http.StatusUnauthorized
			d.Error = "Invalid email or password."
		} else {
			p.logger.Error("password sign-in failed", zap.Error(err))
		}
		p.render(w, status, "login", d)
		return
	}

	auth.SetSessionCookie(w, s, p.secure)
	http.Redirect(w, r, d.Next, http.StatusSeeOther)
}

func (p *Pages) logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" && p.passwords != nil {
		if err := p.passwords.SignOut(r.Context(), token); err != nil {
			p.logger.Warn("sign-out failed", zap.Error(err))
		}
	}
	auth.ClearSessionCookie(w, p.secure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Pages) dashboard(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusOK, "dashboard", p.shellData(r, "Dashboard"))
}

func (p *Pages) projectsPage(w http.ResponseWriter, r *http.Request) {
	d := p.shellData(r, "Projects")
	status := http.StatusOK
	if p.projects != nil {
		list, err := p.projects.List(r.Context(), auth.UserIDFromContext(r.Context()), store.ParseListParams(r.URL.Query()))
		if err != nil {
			p.logger.Error("list projects", zap.Error(err))
			d.Error = "Projects could not be loaded."
			status = http.StatusBadGateway
		}
		d.Projects = list
	}
	p.render(w, status, "projects", d)
}

func (p *Pages) data(_ *http.Request, title string) pageData {
	return pageData{
		AppName:       p.appName,
		Title:         title,
		LoginPath:     p.loginPath,
		PasswordLogin: p.passwords != nil,
	}
}

func (p *Pages) shellData(r *http.Request, title string) pageData {
	d := p.data(r, title)
	if s := auth.SessionFromContext(r.Context()); s != nil {
		u := s.User
		d.User = &u
	}
	d.Nav = make([]navItem, len(shellNav))
	for i, item := range shellNav {
		item.Active = strings.TrimSuffix(r.URL.Path, "/") == item.Href
		d.Nav[i] = item
	}
	return d
}

func (p *Pages) render(w http.ResponseWriter, status int, page string, d pageData) {
	var buf bytes.Buffer
	if err := p.tmpl[page].Execute(&buf, d); err != nil {
		p.logger.Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// loginTarget is where a successful sign-in lands.
func loginTarget(next string) string {
	next = auth.SafeNext(next)
	if next == "/" {
		return "/dashboard"
	}
	return next
}
