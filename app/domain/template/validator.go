package template

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var reValidIdentifier = regexp.MustCompile(`^[a-zA-Z][0-9a-zA-Z_]*$`)

// Validate checks a template document for structural and semantic
// well-formedness. Checks run in a fixed order and the first failure wins.
// Callers are expected to have applied WithDefaults first; a template that
// fails validation is never persisted.
func (t *Template) Validate() error {
	if t.Version != SupportedVersion {
		return &ValidationError{fmt.Sprintf("Unsupported template version %s", t.Version)}
	}
	if t.Name == "" {
		return &ValidationError{"Missing template name"}
	}
	if !reValidIdentifier.MatchString(t.Name) {
		return &ValidationError{fmt.Sprintf("Invalid characters in template name '%s'", t.Name)}
	}

	if err := validateLayerGroup(t.LayerGroup); err != nil {
		return err
	}

	names := make([]string, 0, len(t.Placeholders))
	for name := range t.Placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		placeholder := t.Placeholders[name]
		if !reValidIdentifier.MatchString(name) {
			return &ValidationError{fmt.Sprintf("Invalid characters in placeholder name '%s'", name)}
		}
		if placeholder.Default == nil {
			return &ValidationError{fmt.Sprintf("Missing default for placeholder '%s'", name)}
		}
		if placeholder.Type == "" {
			return &ValidationError{fmt.Sprintf("Missing type for placeholder '%s'", name)}
		}
		if !placeholder.Type.Valid() {
			return &ValidationError{fmt.Sprintf("Unsupported placeholder type '%s' for placeholder '%s'", placeholder.Type, name)}
		}
	}

	switch t.Auth.Method {
	case AuthMethodOpen:
	case AuthMethodToken:
		if t.Auth.ValidTokens == nil {
			return &ValidationError{"Invalid 'token' authentication: missing valid_tokens"}
		}
		if len(t.Auth.ValidTokens) == 0 {
			return &ValidationError{"Invalid 'token' authentication: no valid_tokens"}
		}
	default:
		return &ValidationError{fmt.Sprintf("Unsupported authentication method: %s", t.Auth.Method)}
	}

	return nil
}

func validateLayerGroup(layergroup map[string]any) error {
	if layergroup == nil {
		return &ValidationError{"Missing layergroup"}
	}

	layers, ok := layergroup["layers"].([]any)
	if !ok || len(layers) == 0 {
		return &ValidationError{"Missing or empty layers array from layergroup config"}
	}

	var invalid []string
	for i, l := range layers {
		layer, ok := l.(map[string]any)
		if !ok {
			invalid = append(invalid, strconv.Itoa(i))
			continue
		}
		if options, ok := layer["options"]; !ok || options == nil {
			invalid = append(invalid, strconv.Itoa(i))
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{fmt.Sprintf("Missing `options` in layergroup config for layers: %s", strings.Join(invalid, ", "))}
	}

	return nil
}
