package cookie

import (
	"net/http"
	"strings"
)

// Overrides are the operator-supplied knobs. Secure is a pointer so an unset
// value can be told apart from an explicit false.
type Overrides struct {
	Domain   string
	SameSite string
	Secure   *bool
}

// Policy is the attribute set every auth cookie is written and cleared with.
type Policy struct {
	Secure   bool
	SameSite http.SameSite
	HTTPOnly bool
	Path     string
	Domain   string
}

// Resolve picks cookie attributes for the deployment environment.
//
// Outside production cookies are never Secure and always SameSite=None so a
// dev frontend on another port can use them over plain http. In production
// Secure is on unless explicitly disabled and SameSite follows the override,
// defaulting to None. Domain is only ever set from the override.
func Resolve(production bool, o Overrides) Policy {
	p := Policy{
		Secure:   false,
		SameSite: http.SameSiteNoneMode,
		HTTPOnly: true,
		Path:     "/",
		Domain:   strings.TrimSpace(o.Domain),
	}
	if !production {
		return p
	}

	p.Secure = true
	if o.Secure != nil {
		p.Secure = *o.Secure
	}
	p.SameSite = ParseSameSite(o.SameSite)
	return p
}

// ParseSameSite maps "lax", "strict" and "none" (any case) to the http
// constant. Anything else is None.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteNoneMode
	}
}
