package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
)

func TestCreateValidation(t *testing.T) {
	// Validation runs before any collection access, so a zero-value store
	// is enough to exercise it.
	s := &NotificationStore{}

	_, err := s.Create(context.Background(), &models.Notification{})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t,
		[]string{"userId", "userName", "userEmail", "title", "message"},
		ve.Missing)
}

func TestCreateValidationPartial(t *testing.T) {
	s := &NotificationStore{}

	_, err := s.Create(context.Background(), &models.Notification{
		UserID:    "1",
		UserName:  "Ann",
		UserEmail: "ann@x.com",
		Title:     "hello",
	})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"message"}, ve.Missing)
}

func TestBuildPageInfo(t *testing.T) {
	cases := []struct {
		name       string
		totalCount int64
		page       int
		limit      int
		want       PageInfo
	}{
		{
			name: "empty set", totalCount: 0, page: 1, limit: 10,
			want: PageInfo{CurrentPage: 1, TotalPages: 0, HasNextPage: false, HasPreviousPage: false},
		},
		{
			name: "single partial page", totalCount: 7, page: 1, limit: 10,
			want: PageInfo{CurrentPage: 1, TotalPages: 1, HasNextPage: false, HasPreviousPage: false},
		},
		{
			name: "exact boundary", totalCount: 20, page: 1, limit: 10,
			want: PageInfo{CurrentPage: 1, TotalPages: 2, HasNextPage: true, HasPreviousPage: false},
		},
		{
			name: "middle page", totalCount: 35, page: 2, limit: 10,
			want: PageInfo{CurrentPage: 2, TotalPages: 4, HasNextPage: true, HasPreviousPage: true},
		},
		{
			name: "last page", totalCount: 35, page: 4, limit: 10,
			want: PageInfo{CurrentPage: 4, TotalPages: 4, HasNextPage: false, HasPreviousPage: true},
		},
		{
			name: "page past the end", totalCount: 5, page: 3, limit: 10,
			want: PageInfo{CurrentPage: 3, TotalPages: 1, HasNextPage: false, HasPreviousPage: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildPageInfo(tc.totalCount, tc.page, tc.limit))
		})
	}
}

func TestUnreadQueryKeepsConstraintUnderPinnedIsRead(t *testing.T) {
	isRead := true
	match := Filter{UserID: "42", IsRead: &isRead}.query()

	q := unreadQuery(match)
	and, ok := q["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, and, 2)

	// The filter's own isRead stays in its clause and the unread
	// constraint stays in the other, so a read-only filter counts zero
	// unread instead of the whole set.
	assert.Equal(t, true, and[0]["isRead"])
	assert.Equal(t, "42", and[0]["userId"])
	assert.Equal(t, bson.M{"isRead": false}, and[1])
}

func TestObjectIDsSkipsMalformed(t *testing.T) {
	oids := objectIDs([]string{
		"65a1b2c3d4e5f6a7b8c9d0e1",
		"not-an-object-id",
		"",
		"65a1b2c3d4e5f6a7b8c9d0e2",
	})
	require.Len(t, oids, 2)
	assert.Equal(t, "65a1b2c3d4e5f6a7b8c9d0e1", oids[0].Hex())
	assert.Equal(t, "65a1b2c3d4e5f6a7b8c9d0e2", oids[1].Hex())
}

func TestErrorTypes(t *testing.T) {
	ve := &ValidationError{Missing: []string{"userId", "title"}}
	assert.Contains(t, ve.Error(), "userId")
	assert.Contains(t, ve.Error(), "title")

	cause := errors.New("connection reset")
	pe := &PersistenceError{Op: "insert notification", Err: cause}
	assert.Contains(t, pe.Error(), "insert notification")
	assert.ErrorIs(t, pe, cause)
}
