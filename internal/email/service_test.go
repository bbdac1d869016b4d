package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderContactNotification(t *testing.T) {
	body, err := renderContactNotification(ContactNotification{
		SubmissionID: 42,
		Name:         "Jane Doe",
		Email:        "jane@example.com",
		Message:      "first line\nsecond line",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "#42")
	assert.Contains(t, body, "Jane Doe")
	assert.Contains(t, body, "jane@example.com")
	assert.Contains(t, body, "first line<br>second line")
}

func TestRenderContactNotification_EscapesHTML(t *testing.T) {
	body, err := renderContactNotification(ContactNotification{
		SubmissionID: 1,
		Name:         "Mallory",
		Email:        "m@example.com",
		Message:      "<script>alert(1)</script>",
	})
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}
