package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultHome is the document shown for an empty fragment
const DefaultHome = "Home.md"

// contentRequester starts an asynchronous content fetch. The result is
// handed back through Router.Deliver with the same generation.
type contentRequester interface {
	requestContent(gen uint64, path string)
}

// contentResult is the outcome of one content fetch
type contentResult struct {
	gen  uint64
	path string
	body string
	err  error
}

// Diagnostic replaces the content region when a fetch fails
type Diagnostic struct {
	StatusCode int
	StatusText string
	Detail     string
}

// Router maps fragments to document paths and holds what the content
// region currently shows. Every fetch is tagged with a generation so a
// late response can never overwrite a newer view.
type Router struct {
	home      string
	requester contentRequester
	logger    *slog.Logger

	route   string
	gen     uint64
	loaded  bool
	content string
	diag    *Diagnostic
}

func newRouter(home string, requester contentRequester, logger *slog.Logger) *Router {
	if home == "" {
		home = DefaultHome
	}
	return &Router{home: home, requester: requester, logger: logger}
}

// routeFromFragment strips the leading '#' and maps an empty fragment to home
func routeFromFragment(fragment, home string) string {
	route := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fragment), "#"))
	route = strings.Trim(route, "/")
	if route == "" {
		return home
	}
	return route
}

// Navigate switches to the document named by fragment and fetches it.
// Navigating always re-fetches, even to the current route.
func (r *Router) Navigate(fragment string) {
	r.route = routeFromFragment(fragment, r.home)
	r.logger.Info("Navigating", "route", r.route)
	r.fetch()
}

// ActiveRoute is the document path currently displayed
func (r *Router) ActiveRoute() string {
	return r.route
}

// Reload re-fetches path if it is the displayed document
func (r *Router) Reload(path string) {
	if path != r.route {
		return
	}
	r.logger.Info("Displayed document changed, reloading", "route", r.route)
	r.fetch()
}

// ResetRoute returns to the home document
func (r *Router) ResetRoute() {
	r.logger.Info("Displayed document removed, returning home", "route", r.route, "home", r.home)
	r.Navigate("")
}

func (r *Router) fetch() {
	r.gen++
	r.requester.requestContent(r.gen, r.route)
}

// Deliver applies a fetch result and reports whether the content region
// changed. Results from superseded fetches are dropped.
func (r *Router) Deliver(res contentResult) bool {
	if res.gen != r.gen || res.path != r.route {
		r.logger.Debug("Discarding stale content response", "path", res.path, "route", r.route)
		contentFetchesTotal.WithLabelValues("stale").Inc()
		return false
	}
	r.loaded = true
	if res.err != nil {
		r.logger.Error("Content fetch failed", "path", res.path, "error", res.err)
		contentFetchesTotal.WithLabelValues("error").Inc()
		r.content = ""
		r.diag = diagnosticFor(res.err)
		return true
	}
	contentFetchesTotal.WithLabelValues("ok").Inc()
	r.content = res.body
	r.diag = nil
	return true
}

func diagnosticFor(err error) *Diagnostic {
	var fe *FetchError
	if errors.As(err, &fe) {
		d := &Diagnostic{StatusCode: fe.StatusCode, StatusText: "error", Detail: err.Error()}
		if fe.StatusCode != 0 {
			d.StatusText = http.StatusText(fe.StatusCode)
		}
		if fe.Err != nil {
			d.Detail = fe.Err.Error()
		}
		return d
	}
	return &Diagnostic{StatusText: "error", Detail: err.Error()}
}
