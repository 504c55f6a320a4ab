package repository

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
)

// Filter narrows queries and stats over the notifications collection.
// Explicit field filters and the free-text search combine with logical AND;
// the search itself matches any of title, message, userName or userEmail.
type Filter struct {
	UserID   string
	Type     models.NotificationType
	Status   models.NotificationStatus
	Priority models.Priority
	IsRead   *bool

	// Inclusive createdAt range. Zero values mean unbounded.
	StartDate time.Time
	EndDate   time.Time

	// Case-insensitive substring search.
	Search string
}

var searchFields = []string{"title", "message", "userName", "userEmail"}

func (f Filter) query() bson.M {
	q := bson.M{}

	if f.UserID != "" {
		q["userId"] = f.UserID
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Priority != "" {
		q["priority"] = f.Priority
	}
	if f.IsRead != nil {
		q["isRead"] = *f.IsRead
	}

	if !f.StartDate.IsZero() || !f.EndDate.IsZero() {
		created := bson.M{}
		if !f.StartDate.IsZero() {
			created["$gte"] = f.StartDate
		}
		if !f.EndDate.IsZero() {
			created["$lte"] = f.EndDate
		}
		q["createdAt"] = created
	}

	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		or := make([]bson.M, 0, len(searchFields))
		for _, field := range searchFields {
			or = append(or, bson.M{field: pattern})
		}
		q["$or"] = or
	}

	return q
}
