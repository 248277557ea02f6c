package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/library-api/internal/service"
)

func newTestContext(t *testing.T, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestServiceErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("book 1: %w", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("no copies: %w", service.ErrConflict), http.StatusConflict},
		{fmt.Errorf("not yours: %w", service.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("bad days: %w", service.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := newTestContext(t, "/v1/loans")
		require.NoError(t, serviceError(c, tc.err))
		require.Equal(t, tc.code, rec.Code)
	}
}

func TestPathID(t *testing.T) {
	c, _ := newTestContext(t, "/v1/books/17")
	c.SetParamNames("id")
	c.SetParamValues("17")
	id, ok := pathID(c, "id")
	require.True(t, ok)
	require.EqualValues(t, 17, id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		c, _ := newTestContext(t, "/v1/books/"+bad)
		c.SetParamNames("id")
		c.SetParamValues(bad)
		_, ok := pathID(c, "id")
		require.False(t, ok)
	}
}

func TestGetUserIDAcceptsJWTClaimTypes(t *testing.T) {
	for _, v := range []interface{}{uint64(7), int(7), int64(7), float64(7), "7"} {
		c, _ := newTestContext(t, "/v1/me")
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err)
		require.EqualValues(t, 7, id)
	}

	c, _ := newTestContext(t, "/v1/me")
	_, err := getUserID(c)
	require.Error(t, err)
}
