package inbox_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/application/inbox"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

type InboxServiceTestSuite struct {
	suite.Suite

	ctx     context.Context
	repo    *persistence.NotificationRepository
	service *inbox.Service
}

func (suite *InboxServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.repo = persistence.NewNotificationRepository(persistence.NewTestDB(suite.T()))
	suite.service = inbox.NewService(suite.repo, zaptest.NewLogger(suite.T()))
}

func (suite *InboxServiceTestSuite) seed(userID string, n int) []*notification.Record {
	base := time.Now().Add(-time.Hour)
	out := make([]*notification.Record, n)
	for i := 0; i < n; i++ {
		record := notification.NewRecord(notification.Message{
			UserID: userID,
			Type:   events.ContactRegistered,
			Title:  "Contact Joined Moment",
			Body:   fmt.Sprintf("Contact %d just joined Moment!", i),
			Data:   map[string]interface{}{"eventType": string(events.ContactRegistered)},
		}, base.Add(time.Duration(i)*time.Minute), base)
		suite.Require().NoError(suite.repo.Create(suite.ctx, record))
		out[i] = record
	}
	return out
}

func (suite *InboxServiceTestSuite) TestListClampsAndPages() {
	suite.seed("U1", 3)
	suite.seed("U2", 1)

	page, err := suite.service.List(suite.ctx, "U1", false, 0, 0)
	suite.Require().NoError(err)
	suite.Equal(20, page.Limit)
	suite.Equal(int64(3), page.Total)
	suite.Len(page.Items, 3)
	suite.Equal("Contact 2 just joined Moment!", page.Items[0].Body)

	page, err = suite.service.List(suite.ctx, "U1", false, 500, 2)
	suite.Require().NoError(err)
	suite.Equal(100, page.Limit)
	suite.Len(page.Items, 1)

	_, err = suite.service.List(suite.ctx, "U1", false, 10, -1)
	suite.True(apperrors.IsBadRequest(err))
}

func (suite *InboxServiceTestSuite) TestReadFlow() {
	records := suite.seed("U1", 3)

	count, err := suite.service.UnreadCount(suite.ctx, "U1")
	suite.Require().NoError(err)
	suite.Equal(int64(3), count)

	suite.Require().NoError(suite.service.MarkRead(suite.ctx, "U1", records[0].ID))
	err = suite.service.MarkRead(suite.ctx, "U2", records[1].ID)
	suite.True(apperrors.IsNotFound(err))

	unread, err := suite.service.List(suite.ctx, "U1", true, 10, 0)
	suite.Require().NoError(err)
	suite.Equal(int64(2), unread.Total)

	n, err := suite.service.MarkAllRead(suite.ctx, "U1")
	suite.Require().NoError(err)
	suite.Equal(int64(2), n)

	count, err = suite.service.UnreadCount(suite.ctx, "U1")
	suite.Require().NoError(err)
	suite.Zero(count)
}

func TestInboxServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InboxServiceTestSuite))
}
