package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/momentapp/notifier/internal/application/inbox"
	"github.com/momentapp/notifier/internal/domain/notification"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// NotificationHandler serves in-app notification reads
type NotificationHandler struct {
	inbox *inbox.Service
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(inbox *inbox.Service) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

type notificationView struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Data        map[string]interface{} `json:"data,omitempty"`
	IsRead      bool                   `json:"isRead"`
	ReadAt      *time.Time             `json:"readAt,omitempty"`
	DeliveredAt *time.Time             `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func newNotificationView(r *notification.Record) notificationView {
	return notificationView{
		ID:          r.ID,
		Type:        string(r.Type),
		Title:       r.Title,
		Body:        r.Body,
		Data:        r.Data,
		IsRead:      r.IsRead,
		ReadAt:      r.ReadAt,
		DeliveredAt: r.DeliveredAt,
		CreatedAt:   r.CreatedAt,
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.BadRequest(key + " must be an integer")
	}
	return n, nil
}

// List handles GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		writeError(c, err)
		return
	}
	unreadOnly := c.Query("unread") == "true"

	page, err := h.inbox.List(c.Request.Context(), currentUser(c), unreadOnly, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]notificationView, len(page.Items))
	for i, r := range page.Items {
		items[i] = newNotificationView(r)
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"total":         page.Total,
		"limit":         page.Limit,
		"offset":        page.Offset,
	})
}

// MarkRead handles PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead handles PUT /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.inbox.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.inbox.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
