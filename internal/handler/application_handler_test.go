package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/unidesk/english-proficiency-api/internal/middleware"
	"github.com/unidesk/english-proficiency-api/internal/models"
)

func decisionTestContext(t *testing.T, body *bytes.Buffer, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/applications/app-1/decision", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "officer-1", Role: models.RoleOfficer})
	return c, w
}

func TestDecideRejectsUnreadableDocumentPart(t *testing.T) {
	// a form the document cannot be extracted from must fail loudly, not
	// degrade into a decision without the document
	body := bytes.NewBufferString("decision=REJECTED&feedback=receipt+mismatch")
	c, w := decisionTestContext(t, body, "application/x-www-form-urlencoded")

	handler := NewApplicationHandler(nil, nil)
	handler.Decide(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "processed_document")
}

func TestDecideRejectsCorruptMultipartBody(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("decision", "REJECTED"))
	require.NoError(t, mw.Close())
	truncated := bytes.NewBufferString(strings.TrimSuffix(buf.String(), "--\r\n"))

	c, w := decisionTestContext(t, truncated, mw.FormDataContentType())

	handler := NewApplicationHandler(nil, nil)
	handler.Decide(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
