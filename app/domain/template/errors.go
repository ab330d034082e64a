package template

// ValidationError reports a malformed template document or parameter value.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError reports a lifecycle conflict: duplicate name on create,
// missing id on update/delete, or a rename attempt.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// QuotaError reports that an owner reached the configured template limit.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}
