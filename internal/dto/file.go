package dto

// FileUploadResponse describes a stored file.
type FileUploadResponse struct {
	Key       string `json:"key"`
	Container string `json:"container"`
	URL       string `json:"url"`
}
