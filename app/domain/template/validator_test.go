package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTemplate() *Template {
	return &Template{
		Version: SupportedVersion,
		Name:    "acceptance",
		Auth:    &Auth{Method: AuthMethodOpen},
		Placeholders: map[string]Placeholder{
			"color": {Type: PlaceholderCSSColor, Default: json.RawMessage(`"red"`)},
		},
		LayerGroup: map[string]any{
			"layers": []any{
				map[string]any{"options": map[string]any{"sql": "select 1"}},
			},
		},
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	require.NoError(t, validTemplate().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tpl *Template)
		wantMsg string
	}{
		{
			name:    "unsupported version",
			mutate:  func(tpl *Template) { tpl.Version = "0.0.2" },
			wantMsg: "Unsupported template version 0.0.2",
		},
		{
			name:    "missing name",
			mutate:  func(tpl *Template) { tpl.Name = "" },
			wantMsg: "Missing template name",
		},
		{
			name:    "invalid name characters",
			mutate:  func(tpl *Template) { tpl.Name = "no spaces" },
			wantMsg: "Invalid characters in template name 'no spaces'",
		},
		{
			name:    "name starting with digit",
			mutate:  func(tpl *Template) { tpl.Name = "1abc" },
			wantMsg: "Invalid characters in template name '1abc'",
		},
		{
			name:    "missing layergroup",
			mutate:  func(tpl *Template) { tpl.LayerGroup = nil },
			wantMsg: "Missing layergroup",
		},
		{
			name:    "empty layers",
			mutate:  func(tpl *Template) { tpl.LayerGroup = map[string]any{"layers": []any{}} },
			wantMsg: "Missing or empty layers array from layergroup config",
		},
		{
			name: "layers without options",
			mutate: func(tpl *Template) {
				tpl.LayerGroup["layers"] = []any{
					map[string]any{"options": map[string]any{}},
					map[string]any{},
					map[string]any{"type": "torque"},
				}
			},
			wantMsg: "Missing `options` in layergroup config for layers: 1, 2",
		},
		{
			name: "invalid placeholder name",
			mutate: func(tpl *Template) {
				tpl.Placeholders["no good"] = Placeholder{Type: PlaceholderNumber, Default: json.RawMessage(`1`)}
			},
			wantMsg: "Invalid characters in placeholder name 'no good'",
		},
		{
			name: "missing placeholder default",
			mutate: func(tpl *Template) {
				tpl.Placeholders["color"] = Placeholder{Type: PlaceholderCSSColor}
			},
			wantMsg: "Missing default for placeholder 'color'",
		},
		{
			name: "null default is a default",
			mutate: func(tpl *Template) {
				tpl.Placeholders["color"] = Placeholder{Default: json.RawMessage(`null`)}
			},
			wantMsg: "Missing type for placeholder 'color'",
		},
		{
			name: "unsupported placeholder type",
			mutate: func(tpl *Template) {
				tpl.Placeholders["color"] = Placeholder{Type: "utf8", Default: json.RawMessage(`"x"`)}
			},
			wantMsg: "Unsupported placeholder type 'utf8' for placeholder 'color'",
		},
		{
			name:    "token auth without valid_tokens",
			mutate:  func(tpl *Template) { tpl.Auth = &Auth{Method: AuthMethodToken} },
			wantMsg: "Invalid 'token' authentication: missing valid_tokens",
		},
		{
			name:    "token auth with empty valid_tokens",
			mutate:  func(tpl *Template) { tpl.Auth = &Auth{Method: AuthMethodToken, ValidTokens: []string{}} },
			wantMsg: "Invalid 'token' authentication: no valid_tokens",
		},
		{
			name:    "unsupported auth method",
			mutate:  func(tpl *Template) { tpl.Auth = &Auth{Method: "ldap"} },
			wantMsg: "Unsupported authentication method: ldap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)
			err := tpl.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestValidateLayerGroupBeforePlaceholders(t *testing.T) {
	tpl := validTemplate()
	tpl.LayerGroup = nil
	tpl.Placeholders["bad name"] = Placeholder{}
	assert.EqualError(t, tpl.Validate(), "Missing layergroup")
}
