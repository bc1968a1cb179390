package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

type NotificationRepositoryTestSuite struct {
	suite.Suite

	repo *NotificationRepository
	ctx  context.Context
	now  time.Time
}

func (suite *NotificationRepositoryTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.repo = NewNotificationRepository(NewTestDB(suite.T()))
	suite.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func (suite *NotificationRepositoryTestSuite) create(userID string, at time.Time) *notification.Record {
	rec := notification.NewRecord(notification.Message{
		UserID: userID,
		Type:   events.MomentRequestCreated,
		Title:  "New Moment Request",
		Body:   `Ana invited you to "Lunch"`,
		Data:   map[string]interface{}{"momentRequestId": "req-1"},
	}, at, at)
	suite.Require().NoError(suite.repo.Create(suite.ctx, rec))
	return rec
}

func (suite *NotificationRepositoryTestSuite) TestCreateAndList() {
	first := suite.create("U2", suite.now.Add(-time.Hour))
	second := suite.create("U2", suite.now)
	suite.create("U3", suite.now)

	records, total, err := suite.repo.ListForUser(suite.ctx, "U2", false, 10, 0)
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
	suite.Require().Len(records, 2)
	suite.Equal(second.ID, records[0].ID)
	suite.Equal(first.ID, records[1].ID)
	suite.Equal("req-1", records[0].Data["momentRequestId"])
	suite.True(records[0].IsDelivered)
}

func (suite *NotificationRepositoryTestSuite) TestMarkRead() {
	rec := suite.create("U2", suite.now)
	suite.create("U2", suite.now)

	count, err := suite.repo.CountUnread(suite.ctx, "U2")
	suite.Require().NoError(err)
	suite.EqualValues(2, count)

	suite.True(apperrors.IsNotFound(suite.repo.MarkRead(suite.ctx, "U3", rec.ID, suite.now)))
	suite.Require().NoError(suite.repo.MarkRead(suite.ctx, "U2", rec.ID, suite.now))

	unread, total, err := suite.repo.ListForUser(suite.ctx, "U2", true, 10, 0)
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
	suite.NotEqual(rec.ID, unread[0].ID)

	n, err := suite.repo.MarkAllRead(suite.ctx, "U2", suite.now)
	suite.Require().NoError(err)
	suite.EqualValues(1, n)

	count, err = suite.repo.CountUnread(suite.ctx, "U2")
	suite.Require().NoError(err)
	suite.Zero(count)
}

func (suite *NotificationRepositoryTestSuite) TestDeleteOlderThan() {
	suite.create("U2", suite.now.Add(-31*24*time.Hour))
	suite.create("U2", suite.now.Add(-29*24*time.Hour))

	n, err := suite.repo.DeleteOlderThan(suite.ctx, suite.now.Add(-30*24*time.Hour))
	suite.Require().NoError(err)
	suite.EqualValues(1, n)

	_, total, err := suite.repo.ListForUser(suite.ctx, "U2", false, 10, 0)
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
}

func TestNotificationRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationRepositoryTestSuite))
}
