package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	devicesvc "github.com/momentapp/notifier/internal/application/device"
	"github.com/momentapp/notifier/internal/application/inbox"
	"github.com/momentapp/notifier/internal/application/publisher"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/httpapi"
	"github.com/momentapp/notifier/internal/infrastructure/events/memory"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	"github.com/momentapp/notifier/pkg/auth"
	"github.com/momentapp/notifier/test/testutil"
)

type RouterTestSuite struct {
	suite.Suite
	db     *gorm.DB
	bus    *memory.Bus
	notes  *persistence.NotificationRepository
	jwt    *auth.JWTManager
	router *gin.Engine
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterTestSuite) SetupTest() {
	s.build("development", nil)
}

func (s *RouterTestSuite) build(env string, checks map[string]httpapi.HealthCheck) {
	logger := zaptest.NewLogger(s.T())
	s.db = persistence.NewTestDB(s.T())
	s.bus = memory.NewBus(logger)
	s.Require().NoError(s.bus.Connect(context.Background()))
	s.notes = persistence.NewNotificationRepository(s.db)
	s.jwt = auth.NewJWTManager("http-secret", "moment", time.Hour)

	pub := publisher.New(s.bus, persistence.NewScheduledEventRepository(s.db), logger)
	devices := devicesvc.NewService(persistence.NewDeviceRepository(s.db), pub, env, logger)

	s.router = httpapi.NewRouter(httpapi.Deps{
		Auth:          s.jwt,
		Devices:       httpapi.NewDeviceHandler(devices),
		Notifications: httpapi.NewNotificationHandler(inbox.NewService(s.notes, logger)),
		Checks:        checks,
		SocketStats: func() httpapi.SocketStats {
			return httpapi.SocketStats{Users: 2, Connections: 3}
		},
		MetricsPath: "/metrics",
	}, logger)
}

func (s *RouterTestSuite) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.jwt.GenerateToken(userID)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterTestSuite) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *RouterTestSuite) TestRequiresAuthentication() {
	rec := s.do(http.MethodGet, "/api/devices", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UNAUTHORIZED", s.decode(rec)["code"])
}

func (s *RouterTestSuite) TestRegisterDevice() {
	reg := testutil.CreateTestRegistration("phone-1")

	rec := s.do(http.MethodPost, "/api/devices/register", "U1", reg)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := s.decode(rec)
	s.Equal("phone-1", body["deviceId"])
	s.Equal("active", body["status"])
	s.NotEmpty(body["lastTokenRefresh"])

	rec = s.do(http.MethodGet, "/api/devices", "U1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(s.decode(rec)["devices"], 1)
}

func (s *RouterTestSuite) TestRegisterDeviceErrors() {
	rec := s.do(http.MethodPost, "/api/devices/register", "U1", map[string]string{"platform": "ios"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/devices/register", "U1", map[string]string{"deviceId": "d1", "platform": "windows"})
	s.Equal(http.StatusBadRequest, rec.Code)

	reg := testutil.CreateTestRegistration("phone-1")
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/devices/register", "U1", reg).Code)

	reg.DeviceID = "phone-2"
	rec = s.do(http.MethodPost, "/api/devices/register", "U2", reg)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("CONFLICT", s.decode(rec)["code"])
}

func (s *RouterTestSuite) TestDeactivateAndActivity() {
	reg := testutil.CreateTestRegistration("phone-1")
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/devices/register", "U1", reg).Code)

	rec := s.do(http.MethodPost, "/api/devices/activity", "U1", map[string]string{"expoPushToken": reg.PushToken})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/devices/activity", "U2", map[string]string{"expoPushToken": reg.PushToken})
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/devices/phone-1", "U1", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestSendTest() {
	rec := s.do(http.MethodPost, "/api/devices/test", "U1", map[string]interface{}{"data": map[string]string{"contactName": "Ada"}})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	s.NotEmpty(s.decode(rec)["eventId"])
	s.Len(s.bus.PublishedEvents(), 1)

	s.build("production", nil)
	rec = s.do(http.MethodPost, "/api/devices/test", "U1", nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterTestSuite) TestNotifications() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg, ok := notification.Render(testutil.CreateRequestCreatedEvent("U1", "U2"))
		s.Require().True(ok)
		s.Require().NoError(s.notes.Create(ctx, notification.NewRecord(msg, time.Now(), time.Now())))
	}

	rec := s.do(http.MethodGet, "/api/notifications/unread-count", "U2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.EqualValues(3, s.decode(rec)["count"])

	rec = s.do(http.MethodGet, "/api/notifications?limit=2", "U2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.EqualValues(3, body["total"])
	items := body["notifications"].([]interface{})
	s.Require().Len(items, 2)
	first := items[0].(map[string]interface{})

	rec = s.do(http.MethodPut, "/api/notifications/"+first["id"].(string)+"/read", "U2", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, "/api/notifications/"+first["id"].(string)+"/read", "U1", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/api/notifications/read-all", "U2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.EqualValues(2, s.decode(rec)["updated"])

	rec = s.do(http.MethodGet, "/api/notifications?limit=abc", "U2", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	s.build("development", map[string]httpapi.HealthCheck{
		"bus": func(ctx context.Context) error { return errors.New("not connected") },
	})
	rec = s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("degraded", s.decode(rec)["status"])

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestSocketStats() {
	rec := s.do(http.MethodGet, "/health/sockets", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.EqualValues(2, body["users"])
	s.EqualValues(3, body["connections"])
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
