package models

import (
	"time"
)

// Message represents a chat message sent upstream
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn represents one completed (query, response) exchange.
// Immutable once written.
type Turn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Product represents a product recommendation extracted from a model reply.
// All fields are plain text; no numeric coercion is applied.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Highlights string `json:"highlights"`
	Price      string `json:"price"`
	ImageURL   string `json:"image_url"`
	BuyLink    string `json:"buy_link"`
}

// MetricsRecord is a single persisted per-request metric
type MetricsRecord struct {
	UserID       string    `json:"user_id"`
	RequestTime  time.Time `json:"request_time"`
	ResponseTime float64   `json:"response_time"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// UserMetrics holds per-user running aggregates (process-wide, not persisted)
type UserMetrics struct {
	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	LastRequestTime     time.Time
	TotalResponseTime   float64
	AverageResponseTime float64
}

// ChatResponse is the body returned by POST /chat on success
type ChatResponse struct {
	Response     string    `json:"response"`
	ResponseHTML string    `json:"responseHtml,omitempty"`
	Products     []Product `json:"products"`
	UserID       string    `json:"userId"`
	Timestamp    string    `json:"timestamp"`
	Status       string    `json:"status"`
}

// ErrorResponse is the body returned on terminal failure
type ErrorResponse struct {
	Error    string `json:"error"`
	Response string `json:"response"`
}

// QuestionsRequest is the body accepted by POST /generate_questions
type QuestionsRequest struct {
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
}

// QuestionsResponse is the body returned by POST /generate_questions
type QuestionsResponse struct {
	Questions string `json:"questions"`
}
