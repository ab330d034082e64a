package responses

// ErrorResponse is the uniform error body of the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TemplateIDResponse identifies a stored template, e.g. "localhost@acceptance".
type TemplateIDResponse struct {
	TemplateID string `json:"template_id"`
}

// TemplateListResponse enumerates an owner's stored templates.
type TemplateListResponse struct {
	TemplateIDs []string `json:"template_ids"`
}
