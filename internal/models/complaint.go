package models

import "time"

// ReportReason is a moderation category. The set must stay in sync with the
// moderation service's own report model.
type ReportReason string

const (
	ReasonSpam                 ReportReason = "spam"
	ReasonInappropriateContent ReportReason = "inappropriate_content"
	ReasonHarassment           ReportReason = "harassment"
	ReasonHateSpeech           ReportReason = "hate_speech"
	ReasonViolence             ReportReason = "violence"
	ReasonMisinformation       ReportReason = "misinformation"
	ReasonCopyrightViolation   ReportReason = "copyright_violation"
	ReasonOther                ReportReason = "other"
)

// Valid reports whether r is a known moderation category.
func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonInappropriateContent, ReasonHarassment, ReasonHateSpeech,
		ReasonViolence, ReasonMisinformation, ReasonCopyrightViolation, ReasonOther:
		return true
	}
	return false
}

const (
	ComplaintStatusPending  = "pending"
	ComplaintStatusReviewed = "reviewed"
)

// Complaint is a report filed from inside a random chat session.
type Complaint struct {
	ComplaintID    string       `gorm:"primaryKey;size:64" json:"complaintId"`
	ReporterID     string       `gorm:"size:64;not null;index" json:"reporterId"`
	ReportedUserID string       `gorm:"size:64;not null;index" json:"reportedUserId"`
	SessionID      string       `gorm:"size:64;not null;index" json:"sessionId"`
	Reason         ReportReason `gorm:"size:32;not null" json:"reason"`
	Description    string       `gorm:"type:text;not null" json:"description"`
	// LoggedMessages is a JSON snapshot of the latest messages at report time.
	LoggedMessages string    `gorm:"type:text" json:"loggedMessages,omitempty"`
	Status         string    `gorm:"size:16;not null;index" json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReportRequest is what the chat core hands to the moderation service.
type ReportRequest struct {
	SessionID      string
	ReporterID     string
	ReportedUserID string
	Reason         ReportReason
	Description    string
	Transcript     []ChatMessage
}
