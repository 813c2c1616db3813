package model

import (
	"time"
	"unicode/utf8"
)

// ApplicationStatus is the review state of a grant application.
type ApplicationStatus string

const (
	StatusSubmitted   ApplicationStatus = "submitted"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusNeedsInfo   ApplicationStatus = "needs_info"
	StatusAwarded     ApplicationStatus = "awarded"
	StatusDeclined    ApplicationStatus = "declined"
	StatusWithdrawn   ApplicationStatus = "withdrawn"
)

// MaxAdminNotesLength bounds AdminNotes, counted in characters.
const MaxAdminNotesLength = 5000

// ReportDuePeriodMonths is the time between an award and its oversight report.
const ReportDuePeriodMonths = 6

// Valid reports whether s is one of the known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusNeedsInfo,
		StatusAwarded, StatusDeclined, StatusWithdrawn:
		return true
	}
	return false
}

// Application is a grant application as seen by the admin backend.
// It is a pure domain model; persistence layers map it to their own documents or rows.
type Application struct {
	ID            string            `json:"id"`
	ApplicantName string            `json:"applicantName,omitempty"`
	Email         string            `json:"email,omitempty"`
	ProjectTitle  string            `json:"projectTitle,omitempty"`
	Status        ApplicationStatus `json:"status"`
	AdminNotes    string            `json:"adminNotes"`
	AwardedAt     *time.Time        `json:"awardedAt,omitempty"`
	Oversight     Oversight         `json:"oversight"`
	Uploads       []Upload          `json:"uploads"`
	ReviewShares  []ReviewShare     `json:"reviewShares"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Oversight tracks the post-award report. Only meaningful once awarded.
type Oversight struct {
	ReportDueAt      *time.Time `json:"reportDueAt"`
	ReportReceivedAt *time.Time `json:"reportReceivedAt"`
}

// Upload references a blob owned by the application.
type Upload struct {
	FileID string `json:"fileId"`
}

// ReviewShare grants a token holder read access to every upload of the
// application until ExpiresAt. The raw token is never stored.
type ReviewShare struct {
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Active reports whether the share still authorizes access at now.
func (s ReviewShare) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// HasUpload reports whether fileID is one of the application's uploads.
func (a *Application) HasUpload(fileID string) bool {
	for _, u := range a.Uploads {
		if u.FileID == fileID {
			return true
		}
	}
	return false
}

// ActiveShares counts review shares that have not expired at now.
func (a *Application) ActiveShares(now time.Time) int {
	n := 0
	for _, s := range a.ReviewShares {
		if s.Active(now) {
			n++
		}
	}
	return n
}

// ApplicationUpdate is a partial update applied atomically by a repository.
// Nil pointers leave the stored value untouched.
type ApplicationUpdate struct {
	Status      *ApplicationStatus
	AdminNotes  *string
	AwardedAt   *time.Time
	ReportDueAt *time.Time

	// SetReportReceived writes ReportReceivedAt, which may be nil to clear it.
	SetReportReceived bool
	ReportReceivedAt  *time.Time

	// RequireAwarded makes the write conditional on the stored status being awarded.
	RequireAwarded bool

	UpdatedAt time.Time
}

// AwardUpdate returns the fields written when an application is awarded at awardedAt:
// the report falls due six months later and any previous report receipt is cleared.
func AwardUpdate(awardedAt time.Time) ApplicationUpdate {
	status := StatusAwarded
	at := awardedAt
	due := awardedAt.AddDate(0, ReportDuePeriodMonths, 0)
	return ApplicationUpdate{
		Status:            &status,
		AwardedAt:         &at,
		ReportDueAt:       &due,
		SetReportReceived: true,
		ReportReceivedAt:  nil,
	}
}

// ValidAdminNotes reports whether notes fits within MaxAdminNotesLength.
func ValidAdminNotes(notes string) bool {
	return utf8.RuneCountInString(notes) <= MaxAdminNotesLength
}
