package cookie

import (
	"net/http"
	"time"
)

// Jar writes the session cookie under each configured alias, plus the CSRF
// cookie, all with one Policy. Clearing uses the same attributes, otherwise
// browsers keep the original cookie.
type Jar struct {
	policy       Policy
	sessionNames []string
	csrfName     string
	now          func() time.Time
}

type JarOption func(*Jar)

// WithClock sets the clock used for the Expires attribute.
func WithClock(now func() time.Time) JarOption {
	return func(j *Jar) { j.now = now }
}

func NewJar(policy Policy, sessionNames []string, csrfName string, opts ...JarOption) *Jar {
	names := make([]string, 0, len(sessionNames))
	for _, n := range sessionNames {
		if n != "" {
			names = append(names, n)
		}
	}
	j := &Jar{policy: policy, sessionNames: names, csrfName: csrfName, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Jar) Policy() Policy { return j.policy }

func (j *Jar) SessionNames() []string { return j.sessionNames }

func (j *Jar) CSRFName() string { return j.csrfName }

// SetSession writes the session id under every alias.
func (j *Jar) SetSession(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	for _, name := range j.sessionNames {
		http.SetCookie(w, j.build(name, sessionID, maxAge, true))
	}
}

// SetCSRF writes the double-submit token. It is readable by scripts so the
// frontend can echo it in a header.
func (j *Jar) SetCSRF(w http.ResponseWriter, token string, maxAge time.Duration) {
	if j.csrfName == "" {
		return
	}
	http.SetCookie(w, j.build(j.csrfName, token, maxAge, false))
}

// ClearAll expires every session alias and the CSRF cookie.
func (j *Jar) ClearAll(w http.ResponseWriter) {
	for _, name := range j.sessionNames {
		http.SetCookie(w, j.expired(name, true))
	}
	if j.csrfName != "" {
		http.SetCookie(w, j.expired(j.csrfName, false))
	}
}

// SessionID returns the first non-empty session cookie, trying aliases in
// configured order.
func (j *Jar) SessionID(r *http.Request) string {
	for _, name := range j.sessionNames {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func (j *Jar) CSRFToken(r *http.Request) string {
	if j.csrfName == "" {
		return ""
	}
	if c, err := r.Cookie(j.csrfName); err == nil {
		return c.Value
	}
	return ""
}

func (j *Jar) build(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	secs := int(maxAge / time.Second)
	if secs < 1 {
		// MaxAge 0 would turn this into a browser-session cookie.
		secs = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.policy.Path,
		Domain:   j.policy.Domain,
		MaxAge:   secs,
		Expires:  j.now().Add(time.Duration(secs) * time.Second),
		Secure:   j.policy.Secure,
		HttpOnly: httpOnly && j.policy.HTTPOnly,
		SameSite: j.policy.SameSite,
	}
}

func (j *Jar) expired(name string, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.policy.Path,
		Domain:   j.policy.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   j.policy.Secure,
		HttpOnly: httpOnly && j.policy.HTTPOnly,
		SameSite: j.policy.SameSite,
	}
}
