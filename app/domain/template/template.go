package template

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SupportedVersion is the only template format version currently accepted.
const SupportedVersion = "0.0.1"

const (
	AuthMethodOpen  = "open"
	AuthMethodToken = "token"
)

// Auth is the access policy embedded in a template. Instances of a template
// inherit it: an "open" template can be rendered by anyone, a "token"
// template only by callers presenting one of the valid tokens.
type Auth struct {
	Method      string   `json:"method"`
	ValidTokens []string `json:"valid_tokens,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-string form
// (`"auth": "open"`) still found in stored documents.
func (a *Auth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Method = s
		a.ValidTokens = nil
		return nil
	}
	type plain Auth
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Auth(p)
	return nil
}

// Authorizes reports whether the policy accepts a caller presenting the
// given tokens. An absent policy behaves as "open".
func (a *Auth) Authorizes(tokens ...string) bool {
	if a == nil || a.Method == "" || a.Method == AuthMethodOpen {
		return true
	}
	if a.Method != AuthMethodToken {
		return false
	}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		for _, valid := range a.ValidTokens {
			if token == valid {
				return true
			}
		}
	}
	return false
}

// Placeholder declares one substitutable parameter of a template.
// Default is kept raw so that an absent default can be told apart from an
// explicit null.
type Placeholder struct {
	Type    PlaceholderType `json:"type,omitempty"`
	Default json.RawMessage `json:"default,omitempty"`
}

// DefaultValue decodes the declared default into a Go value.
func (p Placeholder) DefaultValue() any {
	if len(p.Default) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(p.Default, &v); err != nil {
		return string(p.Default)
	}
	return v
}

// Template is a stored, parameterized, reusable map configuration plus its
// access policy. It is identified by (owner, name); the layergroup contents
// are opaque to the control plane except for the layers array and the
// sql/cartocss strings substitution operates on.
type Template struct {
	Version      string                 `json:"version"`
	Name         string                 `json:"name"`
	Auth         *Auth                  `json:"auth"`
	Placeholders map[string]Placeholder `json:"placeholders"`
	LayerGroup   map[string]any         `json:"layergroup"`
}

// WithDefaults returns a copy of the template with the documented defaults
// applied: a missing auth becomes {method: "open"}, missing placeholders
// become an empty set. Applied before validation and before persisting.
func (t *Template) WithDefaults() *Template {
	out := *t
	if out.Auth == nil {
		out.Auth = &Auth{Method: AuthMethodOpen}
	} else {
		auth := *out.Auth
		if auth.Method == "" {
			auth.Method = AuthMethodOpen
		}
		out.Auth = &auth
	}
	if out.Placeholders == nil {
		out.Placeholders = map[string]Placeholder{}
	}
	return &out
}

// Fingerprint returns a stable content hash of the template, usable as a
// change-detection token.
func Fingerprint(t *Template) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to serialize template: %w", err)
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ID renders the public identifier of a template, e.g. "localhost@acceptance".
func ID(owner, name string) string {
	return owner + "@" + name
}

// SplitID parses a public template identifier back into owner and name.
// Identifiers without an owner part are returned with an empty owner.
func SplitID(id string) (owner, name string) {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}
