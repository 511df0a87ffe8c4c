package dto

// ConfigPatchRequest is one JSON-patch style operation accepted by
// PATCH /1.0/config. Only {op: replace, path: /debug} is supported.
type ConfigPatchRequest struct {
	Op    string `json:"op" validate:"required,oneof=replace"`
	Path  string `json:"path" validate:"required,oneof=/debug"`
	Value bool   `json:"value"`
}
