package models

type HealthResponse struct {
	Status string `json:"status"`
}

type CategoryResponse struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type DeleteResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

type ImportResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

type AddedImage struct {
	ID        int64  `json:"id"`
	ImagePath string `json:"image_path"`
}

type AddImagesResponse struct {
	Added  []AddedImage      `json:"added"`
	Errors []UploadErrorInfo `json:"errors,omitempty"`
}

type ReorderResponse struct {
	Status string  `json:"status"`
	Order  []int64 `json:"order"`
}

// UploadErrorInfo describes a file that was dropped from an image batch.
type UploadErrorInfo struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Stage    string `json:"stage"`
}
