// Package flash carries one-shot notices across a redirect in a cookie.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const cookieName = "catalog_flash"

// Add queues msg for the next rendered page. Notices already waiting in the
// request are kept, so several redirects in a row accumulate. Repeated calls
// within one response build on the cookie set by the previous call.
func Add(w http.ResponseWriter, r *http.Request, msg string) {
	msgs, ok := takePending(w.Header())
	if !ok {
		msgs = read(r)
	}
	msgs = append(msgs, msg)

	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop returns the queued notices and expires the cookie.
func Pop(w http.ResponseWriter, r *http.Request) []string {
	if _, err := r.Cookie(cookieName); err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return read(r)
}

// takePending removes any flash cookie already queued on the response and
// returns its notices. A pending expiry from Pop yields an empty list.
func takePending(h http.Header) ([]string, bool) {
	var (
		msgs  []string
		found bool
		kept  []string
	)
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name != cookieName {
			kept = append(kept, line)
			continue
		}
		msgs, found = decode(c.Value), true
	}
	if !found {
		return nil, false
	}
	h.Del("Set-Cookie")
	for _, line := range kept {
		h.Add("Set-Cookie", line)
	}
	return msgs, true
}

// read decodes the request's notices. A tampered cookie reads as empty.
func read(r *http.Request) []string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	return decode(c.Value)
}

func decode(value string) []string {
	if value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var msgs []string
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}
