package presign

// Wire contract types. The request carries one entry per candidate; the
// response is correlated by sha256, never by position.

type fileParam struct {
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	ContentType string `json:"contentType"`
	SHA256      string `json:"sha256"`
}

type negotiateRequest struct {
	Files []fileParam `json:"files"`
}

type destinationParam struct {
	SHA256   string `json:"sha256"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

type negotiateResponse struct {
	Files []destinationParam `json:"files"`
}

// validationErrorBody is the HTTP 422 shape: per-field message lists keyed
// by field path, e.g. {"errors": {"files.0.filesize": ["File too large"]}}.
type validationErrorBody struct {
	Errors map[string][]string `json:"errors"`
}
