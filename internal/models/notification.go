package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType classifies what produced a notification record.
type NotificationType string

const (
	TypeUserRegistration NotificationType = "user_registration"
	TypeEmailSent        NotificationType = "email_sent"
	TypeCustom           NotificationType = "custom"
	TypeAdminSummary     NotificationType = "admin_summary"
	TypeError            NotificationType = "error"
)

// NotificationStatus is the record-level delivery state. StatusRead is only
// reachable through the explicit mark-as-read operations.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
	StatusRead    NotificationStatus = "read"
)

// Priority orders notifications for the read-side consumers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ChannelName identifies a delivery channel attempted during dispatch.
type ChannelName string

const (
	ChannelConsole ChannelName = "console"
	ChannelWebhook ChannelName = "webhook"
	ChannelEmail   ChannelName = "email"
	ChannelSMS     ChannelName = "sms"
	ChannelPush    ChannelName = "push"
)

// ChannelStatus is the per-channel outcome.
type ChannelStatus string

const (
	ChannelSuccess ChannelStatus = "success"
	ChannelFailed  ChannelStatus = "failed"
)

// ChannelOutcome records one delivery attempt on one channel. Exactly one
// outcome is appended per attempted channel, in attempt order, and channels
// are never retried after the record is persisted.
type ChannelOutcome struct {
	Name   ChannelName   `bson:"name" json:"name"`
	Status ChannelStatus `bson:"status" json:"status"`
	SentAt time.Time     `bson:"sentAt" json:"sentAt"`
	Error  string        `bson:"error,omitempty" json:"error,omitempty"`
}

// ErrorInfo captures failure details on error-type records.
type ErrorInfo struct {
	Message string `bson:"message" json:"message"`
	Stack   string `bson:"stack,omitempty" json:"stack,omitempty"`
	Code    string `bson:"code,omitempty" json:"code,omitempty"`
}

// Notification is the durable record created for each processed event. One
// document per event, in the notifications collection.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"userId"`
	UserName  string             `bson:"userName" json:"userName"`
	UserEmail string             `bson:"userEmail" json:"userEmail"`

	Type    NotificationType   `bson:"type" json:"type"`
	Title   string             `bson:"title" json:"title"`
	Message string             `bson:"message" json:"message"`
	Status  NotificationStatus `bson:"status" json:"status"`

	Channels []ChannelOutcome `bson:"channels" json:"channels"`

	EventData      map[string]interface{} `bson:"eventData,omitempty" json:"eventData,omitempty"`
	EventTimestamp time.Time              `bson:"eventTimestamp" json:"eventTimestamp"`

	ProcessedAt        time.Time `bson:"processedAt" json:"processedAt"`
	ProcessingDuration int64     `bson:"processingDuration,omitempty" json:"processingDuration,omitempty"`

	ErrorInfo *ErrorInfo `bson:"error,omitempty" json:"error,omitempty"`

	IsRead bool       `bson:"isRead" json:"isRead"`
	ReadAt *time.Time `bson:"readAt,omitempty" json:"readAt,omitempty"`

	Priority Priority `bson:"priority" json:"priority"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
