package models

// ChatRequest is the form posted by the chat page to POST /get.
type ChatRequest struct {
	Msg string `form:"msg" binding:"required"`
}
