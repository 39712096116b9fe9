package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

func newDemoRouter(t *testing.T) (*gin.Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	demoSvc := services.NewDemoSessionService(mockDB, config.DemoConfig{
		DefaultCredits:     5,
		ReferralAward:      5,
		SessionTTL:         168 * time.Hour,
		ReferralCodeLength: 8,
	}, logger)

	handler := NewDemoHandler(logger, demoSvc)

	router := gin.New()
	router.POST("/demo/sessions", handler.EnsureSession)
	router.POST("/demo/referrals/:code/click", handler.ReferralClick)
	router.GET("/demo/referral-code", func(c *gin.Context) {
		c.Set("principal", models.DemoPrincipal("tok_0123456789abcdef"))
		handler.ReferralCode(c)
	})
	return router, mockDB
}

func TestDemoHandler_EnsureSession(t *testing.T) {
	t.Run("short token is rejected", func(t *testing.T) {
		router, mockDB := newDemoRouter(t)

		req, _ := http.NewRequest("POST", "/demo/sessions", strings.NewReader(`{"session_token": "short"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		router, _ := newDemoRouter(t)

		req, _ := http.NewRequest("POST", "/demo/sessions", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("valid token creates a session", func(t *testing.T) {
		router, mockDB := newDemoRouter(t)

		mockDB.ExpectQuery("SELECT (.+) FROM demo_sessions WHERE session_token").
			WithArgs("tok_0123456789abcdef").
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO demo_sessions").
			WithArgs(pgxmock.AnyArg(), "tok_0123456789abcdef", 5, (*string)(nil),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		body := `{"session_token": "tok_0123456789abcdef"}`
		req, _ := http.NewRequest("POST", "/demo/sessions", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"credits_remaining":5`)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestDemoHandler_ReferralClick(t *testing.T) {
	t.Run("unknown code is 404", func(t *testing.T) {
		router, mockDB := newDemoRouter(t)

		mockDB.ExpectQuery("SELECT id FROM demo_sessions WHERE referral_code").
			WithArgs("NOCODE99", pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)

		req, _ := http.NewRequest("POST", "/demo/referrals/NOCODE99/click", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "REFERRAL_CODE_NOT_FOUND")
	})
}

func TestDemoHandler_ReferralCode(t *testing.T) {
	t.Run("expired session is 404", func(t *testing.T) {
		router, mockDB := newDemoRouter(t)

		mockDB.ExpectQuery("SELECT (.+) FROM demo_sessions WHERE session_token").
			WithArgs("tok_0123456789abcdef").
			WillReturnError(pgx.ErrNoRows)

		req, _ := http.NewRequest("GET", "/demo/referral-code", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "SESSION_NOT_FOUND")
	})
}
