package publisher

import "time"

// Moment describes a calendar entry owned by UserID
type Moment struct {
	ID           string
	UserID       string
	Title        string
	Notes        string
	StartTime    time.Time
	EndTime      time.Time
	Availability string
}

// MomentRequest describes an invitation from SenderID to ReceiverID
type MomentRequest struct {
	ID           string
	SenderID     string
	ReceiverID   string
	SenderName   string
	ReceiverName string
	Title        string
	Notes        string
	StartTime    time.Time
	EndTime      time.Time
}

// Cancellation describes a canceled meeting that NotifyUserID must hear about
type Cancellation struct {
	RequestID        string
	NotifyUserID     string
	CanceledByUserID string
	CanceledByName   string
	Title            string
	StartTime        time.Time
	EndTime          time.Time
}

// Contact describes a contact of OwnerID who just joined
type Contact struct {
	UserID      string
	OwnerID     string
	Name        string
	PhoneNumber string
}
