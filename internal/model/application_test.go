package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardUpdate(t *testing.T) {
	awardedAt := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	upd := AwardUpdate(awardedAt)

	require.NotNil(t, upd.Status)
	assert.Equal(t, StatusAwarded, *upd.Status)
	require.NotNil(t, upd.AwardedAt)
	assert.True(t, awardedAt.Equal(*upd.AwardedAt))
	require.NotNil(t, upd.ReportDueAt)
	assert.Equal(t, time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC), *upd.ReportDueAt)
	assert.True(t, upd.SetReportReceived)
	assert.Nil(t, upd.ReportReceivedAt)
}

func TestApplicationStatus_Valid(t *testing.T) {
	for _, s := range []ApplicationStatus{
		StatusSubmitted, StatusUnderReview, StatusNeedsInfo,
		StatusAwarded, StatusDeclined, StatusWithdrawn,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ApplicationStatus("approved").Valid())
	assert.False(t, ApplicationStatus("").Valid())
}

func TestValidAdminNotes(t *testing.T) {
	assert.True(t, ValidAdminNotes(""))
	assert.True(t, ValidAdminNotes(strings.Repeat("a", MaxAdminNotesLength)))
	assert.False(t, ValidAdminNotes(strings.Repeat("a", MaxAdminNotesLength+1)))
	// multi-byte characters count once each
	assert.True(t, ValidAdminNotes(strings.Repeat("é", MaxAdminNotesLength)))
}

func TestApplication_SharesAndUploads(t *testing.T) {
	now := time.Now()
	app := &Application{
		Uploads: []Upload{{FileID: "a"}, {FileID: "b"}},
		ReviewShares: []ReviewShare{
			{TokenHash: "h1", ExpiresAt: now.Add(time.Hour)},
			{TokenHash: "h2", ExpiresAt: now.Add(-time.Hour)},
			{TokenHash: "h3", ExpiresAt: now},
		},
	}

	assert.True(t, app.HasUpload("b"))
	assert.False(t, app.HasUpload("c"))
	// a share expiring exactly now is no longer active
	assert.Equal(t, 1, app.ActiveShares(now))
}

func TestBlobInfo_Headers(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		b := BlobInfo{Length: -1}
		assert.Equal(t, DefaultContentType, b.ContentType())
		assert.Equal(t, DefaultDownloadName, b.DownloadName())
		assert.False(t, b.HasLength())
		assert.Equal(t, `attachment; filename="download"`, b.ContentDisposition())
	})

	t.Run("quotes stripped", func(t *testing.T) {
		b := BlobInfo{Filename: `my "final" report.pdf`, MimeType: "application/pdf", Length: 0}
		assert.Equal(t, "application/pdf", b.ContentType())
		assert.Equal(t, `attachment; filename="my final report.pdf"`, b.ContentDisposition())
		assert.True(t, b.HasLength())
	})

	t.Run("only quotes", func(t *testing.T) {
		b := BlobInfo{Filename: `""`}
		assert.Equal(t, DefaultDownloadName, b.DownloadName())
	})

	t.Run("control characters", func(t *testing.T) {
		b := BlobInfo{Filename: "a\r\nSet-Cookie: x.txt"}
		assert.Equal(t, "aSet-Cookie: x.txt", b.DownloadName())
	})
}
