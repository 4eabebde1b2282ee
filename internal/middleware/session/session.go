// Package session issues the browser session cookie and carries one-shot
// flash messages between a redirect and the page it lands on.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

const (
	CookieName      = "spesa_session"
	FlashCookieName = "spesa_flash"

	sessionMaxAge = 30 * 24 * 60 * 60
	flashMaxAge   = 60
)

type contextKey struct{}

// Level is the severity of a flash message.
type Level string

const (
	Success Level = "success"
	Warning Level = "warning"
)

// Flash is a message shown once on the next page.
type Flash struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Middleware guarantees every request has a session id, issuing a new
// cookie when the client sent none or an invalid one.
func Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(CookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   sessionMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

// WithID stores a session id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the session id set by Middleware, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// AddFlash appends a message to the pending flashes, preserving any that
// were queued earlier in the same response.
func AddFlash(w http.ResponseWriter, r *http.Request, level Level, message string) {
	flashes, ok := takeQueuedFlashes(w)
	if !ok {
		flashes = readFlashes(r)
	}
	flashes = append(flashes, Flash{Level: level, Message: message})
	raw, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlashes returns the pending flashes and clears the cookie.
func PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if len(flashes) == 0 {
		return []Flash{}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return flashes
}

// takeQueuedFlashes returns the flashes already set on w and removes that
// Set-Cookie line so only one flash cookie is sent. ok is false when w has
// no flash cookie yet.
func takeQueuedFlashes(w http.ResponseWriter) (flashes []Flash, ok bool) {
	h := w.Header()
	var kept []string
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name != FlashCookieName {
			kept = append(kept, line)
			continue
		}
		flashes, ok = decodeFlashes(c.Value), true
	}
	if !ok {
		return nil, false
	}
	if len(kept) == 0 {
		h.Del("Set-Cookie")
	} else {
		h["Set-Cookie"] = kept
	}
	return flashes, true
}

func readFlashes(r *http.Request) []Flash {
	c, err := r.Cookie(FlashCookieName)
	if err != nil {
		return nil
	}
	return decodeFlashes(c.Value)
}

func decodeFlashes(value string) []Flash {
	if value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}
