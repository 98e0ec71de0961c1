package middleware

import (
	"net/http"
	"strings"

	"github.com/BradenHooton/bastion/internal/settings"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// FeatureSettings is the read side of the hardening toggles
type FeatureSettings interface {
	Get(name string) bool
}

// HideVersion removes X-Powered-By and replaces the Server header with the
// bare product name
func HideVersion(features FeatureSettings, productName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !features.Get(settings.HideVersion) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hw := newHeaderHookWriter(w, func(h http.Header) {
				h.Del("X-Powered-By")
				h.Set("Server", productName)
			})
			next.ServeHTTP(hw, r)
			hw.flushHeaders()
		})
	}
}

// DisableXMLRPC answers XML-RPC endpoints with 403
func DisableXMLRPC(features FeatureSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !features.Get(settings.DisableXMLRPC) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch strings.TrimSuffix(r.URL.Path, "/") {
			case "/xmlrpc.php", "/xmlrpc":
				pkghttp.WriteForbidden(w, "XML-RPC is disabled")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FilterRESTEndpoints hides user-listing endpoints from anonymous callers by
// answering 404 when no Authorization header is present
func FilterRESTEndpoints(features FeatureSettings, prefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !features.Get(settings.FilterRESTEndpoints) || len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" && matchesPrefix(r.URL.Path, prefixes) {
				pkghttp.WriteNotFound(w, "resource not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BlockAuthorEnumeration redirects ?author= probes and /author/ paths to the site root
func BlockAuthorEnumeration(features FeatureSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !features.Get(settings.BlockAuthorEnumeration) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Has("author") || strings.HasPrefix(r.URL.Path, "/author/") {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecureCookies adds HttpOnly, SameSite=Lax and (over TLS) Secure to every
// cookie set downstream. Attributes already present are left alone.
func SecureCookies(features FeatureSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !features.Get(settings.SecureCookies) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := isHTTPS(r)
			hw := newHeaderHookWriter(w, func(h http.Header) {
				hardenSetCookies(h, secure)
			})
			next.ServeHTTP(hw, r)
			hw.flushHeaders()
		})
	}
}

func hardenSetCookies(h http.Header, secure bool) {
	values := h.Values("Set-Cookie")
	if len(values) == 0 {
		return
	}

	hardened := make([]string, 0, len(values))
	for _, raw := range values {
		cookie, err := http.ParseSetCookie(raw)
		if err != nil {
			hardened = append(hardened, raw)
			continue
		}
		cookie.HttpOnly = true
		if secure {
			cookie.Secure = true
		}
		if cookie.SameSite == 0 || cookie.SameSite == http.SameSiteDefaultMode {
			cookie.SameSite = http.SameSiteLaxMode
		}
		hardened = append(hardened, cookie.String())
	}

	h.Del("Set-Cookie")
	for _, v := range hardened {
		h.Add("Set-Cookie", v)
	}
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// headerHookWriter runs hook once, right before the response headers are sent
type headerHookWriter struct {
	http.ResponseWriter
	hook        func(http.Header)
	wroteHeader bool
}

func newHeaderHookWriter(w http.ResponseWriter, hook func(http.Header)) *headerHookWriter {
	return &headerHookWriter{ResponseWriter: w, hook: hook}
}

func (w *headerHookWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.hook(w.Header())
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *headerHookWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// flushHeaders applies the hook for handlers that never wrote anything
func (w *headerHookWriter) flushHeaders() {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.hook(w.Header())
	}
}

func (w *headerHookWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
