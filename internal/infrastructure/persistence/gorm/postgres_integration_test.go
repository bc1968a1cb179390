package gorm_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/momentapp/notifier/internal/domain/device"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	"github.com/momentapp/notifier/test/testutil"
)

type PostgresDeviceTestSuite struct {
	suite.Suite

	container *testutil.PostgresContainer
	repo      *persistence.DeviceRepository
	ctx       context.Context
}

func (suite *PostgresDeviceTestSuite) SetupSuite() {
	suite.ctx = context.Background()
	suite.container = testutil.SetupPostgresContainer(suite.T())
	suite.Require().NoError(suite.container.MigrateModels(persistence.Models()...))
}

func (suite *PostgresDeviceTestSuite) SetupTest() {
	suite.repo = persistence.NewDeviceRepository(suite.container.DB)
	suite.Require().NoError(suite.container.TruncateTables("user_devices"))
}

func (suite *PostgresDeviceTestSuite) TestConcurrentFailuresAreNotLost() {
	reg := testutil.CreateTestRegistration("ios-1")
	_, err := suite.repo.RegisterOrUpdate(suite.ctx, "U1", reg)
	suite.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = suite.repo.IncrementFailureCount(suite.ctx, reg.PushToken)
		}()
	}
	wg.Wait()

	d, err := suite.repo.FindByToken(suite.ctx, reg.PushToken)
	suite.Require().NoError(err)
	suite.Equal(5, d.FailureCount)
	suite.Equal(device.StatusConfirmedInvalid, d.Status)
	suite.False(d.IsActive)
}

func TestPostgresDeviceTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresDeviceTestSuite))
}
