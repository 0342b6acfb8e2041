package model

// UploadResponse describes a stored upload. Filename is the server-generated
// name the file was stored under, never the client-supplied one.
type UploadResponse struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	Size             int64  `json:"size"`
}
