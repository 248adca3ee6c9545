package models

// Request/response schemas for the HTTP surface. Response types are total:
// every field is always present, and an empty Sources slice is the explicit
// "no documents used" signal.

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token              string `json:"token"`
	Username           string `json:"username"`
	MustChangePassword bool   `json:"must_change_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type ChatRequest struct {
	Query string `json:"query" binding:"required"`
}

type ChatResponse struct {
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	UsedDocuments bool     `json:"used_documents"`
}

type UploadResponse struct {
	Message         string `json:"message"`
	Filename        string `json:"filename"`
	ChunksProcessed int    `json:"chunks_processed"`
	TotalChunks     int    `json:"total_chunks"`
}
