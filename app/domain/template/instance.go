package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// Instance turns a template plus caller-supplied parameters into a concrete,
// renderable map configuration. The template itself is never mutated and no
// partial result is returned: the first invalid parameter aborts the whole
// instantiation.
//
// Substitution is performed one placeholder at a time via literal token
// replacement, matching the reference behavior: a resolved value that
// happens to contain the token form of a later placeholder is substituted
// again in that later pass.
func Instance(tpl *Template, params map[string]any) (map[string]any, error) {
	resolved := map[string]string{}
	for _, name := range sortedPlaceholderNames(tpl.Placeholders) {
		placeholder := tpl.Placeholders[name]
		value, ok := params[name]
		if !ok {
			value = placeholder.DefaultValue()
		}
		escaped, err := placeholder.Type.Resolve(name, value)
		if err != nil {
			return nil, err
		}
		resolved[name] = escaped
	}

	layergroup, err := deepCopy(tpl.LayerGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to copy layergroup: %w", err)
	}

	layers, _ := layergroup["layers"].([]any)
	for _, l := range layers {
		layer, ok := l.(map[string]any)
		if !ok {
			continue
		}
		options, ok := layer["options"].(map[string]any)
		if !ok {
			continue
		}
		if sql, ok := options["sql"].(string); ok {
			options["sql"] = replaceVars(sql, resolved)
		}
		if cartocss, ok := options["cartocss"].(string); ok {
			options["cartocss"] = replaceVars(cartocss, resolved)
		}
	}

	layergroup["template"] = map[string]any{
		"name": tpl.Name,
		"auth": tpl.Auth,
	}

	return layergroup, nil
}

func sortedPlaceholderNames(placeholders map[string]Placeholder) []string {
	names := make([]string, 0, len(placeholders))
	for name := range placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// replaceVars substitutes every occurrence of each placeholder token
// (`<%= name %>`, whitespace tolerant) with its resolved value.
func replaceVars(s string, params map[string]string) string {
	for _, name := range sortedKeys(params) {
		re := regexp.MustCompile(`<%=\s*` + regexp.QuoteMeta(name) + `\s*%>`)
		s = re.ReplaceAllLiteralString(s, params[name])
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deepCopy(src map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var dst map[string]any
	if err := json.Unmarshal(raw, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}
