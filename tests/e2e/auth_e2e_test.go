//go:build e2e
// +build e2e

package e2e

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"campus-market/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		client := NewTestClient(t)
		email := uniqueEmail("Register")

		result, err := client.RegisterUser(email, testPassword, "Ada Lovelace", "Campus University")
		require.NoError(t, err)

		assert.Equal(t, strings.ToLower(email), result.Email)
		assert.Equal(t, "Ada Lovelace", result.FullName)
		assert.Equal(t, "campus.edu", result.Domain)
		assert.Positive(t, result.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		client := NewTestClient(t)
		email := uniqueEmail("duplicate")

		_, err := client.RegisterUser(email, testPassword, "First", "Campus University")
		require.NoError(t, err)

		_, err = client.RegisterUser(email, testPassword, "Second", "Campus University")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "409")
	})

	t.Run("invalid email rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.RegisterUser("not-an-email", testPassword, "Bad Email", "Campus University")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("short password rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.RegisterUser(uniqueEmail("short"), "short", "Short Password", "Campus University")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})
}

func TestAuth_Login(t *testing.T) {
	t.Run("successful login sets cookies", func(t *testing.T) {
		client := NewTestClient(t)
		email := uniqueEmail("login")

		_, err := client.RegisterUser(email, testPassword, "Login User", "Campus University")
		require.NoError(t, err)

		result, err := client.LoginUser(email, testPassword)
		require.NoError(t, err)

		assert.NotEmpty(t, result.AccessToken)
		assert.True(t, result.ExpiresAt.After(time.Now()))
		assert.Equal(t, email, result.User.Email)
		assert.NotEmpty(t, client.csrfToken(), "login should issue a csrf cookie")
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		client := NewTestClient(t)
		email := uniqueEmail("wrongpass")

		_, err := client.RegisterUser(email, testPassword, "Wrong Pass", "Campus University")
		require.NoError(t, err)

		_, err = client.LoginUser(email, "not-the-password")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("unknown email rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.LoginUser(uniqueEmail("nobody"), testPassword)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestAuth_Me(t *testing.T) {
	t.Run("cookie session", func(t *testing.T) {
		client := setupTestUser(t, "me")

		me, err := client.GetMe()
		require.NoError(t, err)
		assert.Equal(t, client.userID, me.ID)
		assert.Equal(t, client.email, me.Email)
	})

	t.Run("bearer token", func(t *testing.T) {
		client := setupTestUser(t, "bearer")

		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/auth/me", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+client.accessToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/auth/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuth_Logout(t *testing.T) {
	t.Run("successful logout", func(t *testing.T) {
		client := setupTestUser(t, "logout")

		_, err := client.GetMe()
		require.NoError(t, err)

		require.NoError(t, client.Logout())

		resp, err := client.Get(baseURL + "/api/v1/auth/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("cookie session without csrf header is forbidden", func(t *testing.T) {
		client := setupTestUser(t, "csrf")

		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/logout", nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		_, err = client.GetMe()
		assert.NoError(t, err, "session should survive the rejected logout")
	})

	t.Run("mismatched csrf header is forbidden", func(t *testing.T) {
		client := setupTestUser(t, "csrfmismatch")

		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/logout", nil)
		require.NoError(t, err)
		req.Header.Set(middleware.CSRFHeader, "forged")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestAuth_SessionPersistence(t *testing.T) {
	t.Run("different clients have independent sessions", func(t *testing.T) {
		client1 := setupTestUser(t, "user1")
		client2 := setupTestUser(t, "user2")

		me1, err := client1.GetMe()
		require.NoError(t, err)

		me2, err := client2.GetMe()
		require.NoError(t, err)

		assert.NotEqual(t, me1.ID, me2.ID)
	})
}
