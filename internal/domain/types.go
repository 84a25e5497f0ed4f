package domain

import (
	"errors"
	"time"
)

type SubscriberStatus string

const (
	StatusActive   SubscriberStatus = "active"
	StatusInactive SubscriberStatus = "inactive"
)

// Subscriber is one registered recipient. Records are keyed by ID and
// indexed by their canonical phone, which is unique across subscribers.
type Subscriber struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Phone                string           `json:"phone"`
	Email                string           `json:"email,omitempty"`
	Status               SubscriberStatus `json:"status"`
	Source               string           `json:"source,omitempty"`
	UserAgent            string           `json:"userAgent,omitempty"`
	Referrer             string           `json:"referrer,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	NotificationsSent    int              `json:"notificationsSent"`
	LastNotificationSent *time.Time       `json:"lastNotificationSent,omitempty"`
}

// DispatchRequest is one invocation of the notification pipeline.
// TestMode simulates sends without contacting the provider or mutating
// subscriber state. SpecificPhone overrides the recipient set with a
// single number, bypassing the repository.
type DispatchRequest struct {
	Message       string `json:"message"`
	TestMode      bool   `json:"testMode"`
	SpecificPhone string `json:"specificPhone,omitempty"`
}

// DeliveryResult is the per-recipient outcome of one dispatch. Exactly one
// result exists per resolved recipient per invocation.
type DeliveryResult struct {
	Phone     string `json:"phone"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// DispatchSummary is the aggregate returned to the caller. Result phones
// are masked before the summary leaves the orchestrator.
type DispatchSummary struct {
	TotalSent       int              `json:"totalSent"`
	TotalFailed     int              `json:"totalFailed"`
	TotalRecipients int              `json:"totalRecipients"`
	TestMode        bool             `json:"testMode"`
	Results         []DeliveryResult `json:"results"`
}

var (
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrDuplicatePhone = errors.New("phone number already registered")
	ErrMissingMessage = errors.New("message is required")
	ErrNoRecipients   = errors.New("no recipients to send to")
	ErrRateLimited    = errors.New("rate limit exceeded")
)
