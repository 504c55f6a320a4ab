package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
)

const defaultCollection = "notifications"

// NotificationStore persists notification records in a MongoDB collection.
type NotificationStore struct {
	coll *mongo.Collection
}

func NewNotificationStore(db *mongo.Database, collection string) *NotificationStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &NotificationStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the indexes backing the filterable fields. Safe to
// call on every startup; index creation is idempotent.
func (s *NotificationStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "userEmail", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "isRead", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "eventTimestamp", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "channels.name", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return &PersistenceError{Op: "create indexes", Err: err}
	}
	return nil
}

func validate(n *models.Notification) *ValidationError {
	var missing []string
	if n.UserID == "" {
		missing = append(missing, "userId")
	}
	if n.UserName == "" {
		missing = append(missing, "userName")
	}
	if n.UserEmail == "" {
		missing = append(missing, "userEmail")
	}
	if n.Title == "" {
		missing = append(missing, "title")
	}
	if n.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Create assigns an id and timestamps, fills defaulted fields and inserts
// the record. Records missing required fields fail with a ValidationError
// before any write is attempted.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if err := validate(n); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.Status == "" {
		n.Status = models.StatusSent
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if n.Channels == nil {
		n.Channels = []models.ChannelOutcome{}
	}
	if n.ProcessedAt.IsZero() {
		n.ProcessedAt = now
	}
	if n.ProcessingDuration == 0 && !n.EventTimestamp.IsZero() {
		n.ProcessingDuration = n.ProcessedAt.Sub(n.EventTimestamp).Milliseconds()
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return nil, &PersistenceError{Op: "insert notification", Err: err}
	}
	return n, nil
}

// FindByID returns the record with the given hex id, or ErrNotFound.
func (s *NotificationStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var n models.Notification
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find notification", Err: err}
	}
	return &n, nil
}

// PageInfo describes the position of a result page. Pages are 1-indexed.
type PageInfo struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is one page of query results plus the unpaginated total.
type Page struct {
	Items      []*models.Notification `json:"items"`
	TotalCount int64                  `json:"totalCount"`
	PageInfo   PageInfo               `json:"pageInfo"`
}

func buildPageInfo(totalCount int64, page, limit int) PageInfo {
	totalPages := int(math.Ceil(float64(totalCount) / float64(limit)))
	return PageInfo{
		CurrentPage:     page,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

// Query returns a filtered, sorted, 1-indexed page of notifications.
func (s *NotificationStore) Query(ctx context.Context, f Filter, page, limit int, sortBy, sortOrder string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if sortBy == "" {
		sortBy = "createdAt"
	}
	dir := -1
	if sortOrder == "asc" {
		dir = 1
	}

	query := f.query()

	totalCount, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "count notifications", Err: err}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortBy, Value: dir}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, &PersistenceError{Op: "find notifications", Err: err}
	}
	defer cursor.Close(ctx)

	items := []*models.Notification{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, &PersistenceError{Op: "decode notifications", Err: err}
	}

	return &Page{
		Items:      items,
		TotalCount: totalCount,
		PageInfo:   buildPageInfo(totalCount, page, limit),
	}, nil
}

// Stats are aggregate notification counts over a filtered set.
type Stats struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
	Unread  int64 `json:"unread"`

	ByType     map[models.NotificationType]int64   `json:"byType"`
	ByStatus   map[models.NotificationStatus]int64 `json:"byStatus"`
	ByPriority map[models.Priority]int64           `json:"byPriority"`
}

type groupCount struct {
	ID    string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (s *NotificationStore) groupBy(ctx context.Context, match bson.M, field string) (map[string]int64, error) {
	pipeline := []bson.M{
		{"$match": match},
		{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []groupCount
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.Count
	}
	return counts, nil
}

// Stats computes the aggregate counters over the filtered set.
func (s *NotificationStore) Stats(ctx context.Context, f Filter) (*Stats, error) {
	match := f.query()

	byStatusRaw, err := s.groupBy(ctx, match, "status")
	if err != nil {
		return nil, &PersistenceError{Op: "aggregate by status", Err: err}
	}
	byTypeRaw, err := s.groupBy(ctx, match, "type")
	if err != nil {
		return nil, &PersistenceError{Op: "aggregate by type", Err: err}
	}
	byPriorityRaw, err := s.groupBy(ctx, match, "priority")
	if err != nil {
		return nil, &PersistenceError{Op: "aggregate by priority", Err: err}
	}

	unread, err := s.coll.CountDocuments(ctx, unreadQuery(match))
	if err != nil {
		return nil, &PersistenceError{Op: "count unread", Err: err}
	}

	stats := &Stats{
		Unread:     unread,
		ByType:     map[models.NotificationType]int64{},
		ByStatus:   map[models.NotificationStatus]int64{},
		ByPriority: map[models.Priority]int64{},
	}
	for k, v := range byStatusRaw {
		stats.ByStatus[models.NotificationStatus(k)] = v
		stats.Total += v
	}
	stats.Sent = byStatusRaw[string(models.StatusSent)]
	stats.Failed = byStatusRaw[string(models.StatusFailed)]
	stats.Pending = byStatusRaw[string(models.StatusPending)]
	for k, v := range byTypeRaw {
		stats.ByType[models.NotificationType(k)] = v
	}
	for k, v := range byPriorityRaw {
		stats.ByPriority[models.Priority(k)] = v
	}
	return stats, nil
}

// unreadQuery composes the filter with the unread constraint. The filter may
// itself pin isRead, so the two combine with $and instead of a key merge
// that would let the filter overwrite the constraint.
func unreadQuery(match bson.M) bson.M {
	return bson.M{"$and": []bson.M{match, {"isRead": false}}}
}

// CountByTypeAndStatus counts persisted records of one type and status. The
// dispatcher reads it to decide admin summary triggering.
func (s *NotificationStore) CountByTypeAndStatus(ctx context.Context, typ models.NotificationType, status models.NotificationStatus) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"type": typ, "status": status})
	if err != nil {
		return 0, &PersistenceError{Op: "count by type and status", Err: err}
	}
	return count, nil
}

func readUpdate() bson.M {
	now := time.Now().UTC()
	return bson.M{"$set": bson.M{"isRead": true, "readAt": now, "updatedAt": now}}
}

// MarkAsRead flags a single record as read and returns the updated record.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n models.Notification
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, readUpdate(), opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "mark as read", Err: err}
	}
	return &n, nil
}

// MarkManyAsRead flags the given records as read and reports how many
// records were modified. Unknown and malformed ids are skipped.
func (s *NotificationStore) MarkManyAsRead(ctx context.Context, ids []string) (int64, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return 0, nil
	}
	res, err := s.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": oids}}, readUpdate())
	if err != nil {
		return 0, &PersistenceError{Op: "mark many as read", Err: err}
	}
	return res.ModifiedCount, nil
}

// MarkAllAsReadForUser flags every unread record of one user as read.
// Calling it again is a no-op.
func (s *NotificationStore) MarkAllAsReadForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx, bson.M{"userId": userID, "isRead": false}, readUpdate())
	if err != nil {
		return 0, &PersistenceError{Op: "mark all as read", Err: err}
	}
	return res.ModifiedCount, nil
}

// Delete removes one record. Deleting a non-existent or malformed id
// reports zero affected, not an error.
func (s *NotificationStore) Delete(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, &PersistenceError{Op: "delete notification", Err: err}
	}
	return res.DeletedCount, nil
}

// DeleteMany removes the given records and reports how many existed.
func (s *NotificationStore) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return 0, &PersistenceError{Op: "delete notifications", Err: err}
	}
	return res.DeletedCount, nil
}

// DeleteAllForUser removes every record belonging to one user.
func (s *NotificationStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, &PersistenceError{Op: "delete user notifications", Err: err}
	}
	return res.DeletedCount, nil
}

func objectIDs(ids []string) []primitive.ObjectID {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}
