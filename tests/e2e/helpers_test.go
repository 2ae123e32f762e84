//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"campus-market/internal/middleware"
	"campus-market/internal/service"

	"github.com/gorilla/websocket"
)

const testPassword = "password123"

// TestClient wraps http.Client with cookie handling for a single user session
type TestClient struct {
	*http.Client
	t           *testing.T
	accessToken string
	userID      int64
	email       string
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		t: t,
	}
}

// RegisterUser registers a new user and returns the response
func (tc *TestClient) RegisterUser(email, password, fullName, university string) (*UserResponse, error) {
	body := map[string]string{
		"email":      email,
		"password":   password,
		"full_name":  fullName,
		"university": university,
	}

	resp, err := tc.PostJSON("/api/v1/auth/register", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode register response: %w", err)
	}

	tc.userID = result.ID
	tc.email = result.Email
	return &result, nil
}

// LoginUser logs in a user and keeps the access token for WebSocket dials
func (tc *TestClient) LoginUser(email, password string) (*LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	resp, err := tc.PostJSON("/api/v1/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	tc.accessToken = result.AccessToken
	tc.userID = result.User.ID
	tc.email = result.User.Email
	return &result, nil
}

// Logout logs out the current user
func (tc *TestClient) Logout() error {
	resp, err := tc.PostJSON("/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	tc.accessToken = ""
	return nil
}

// GetMe returns the current user information
func (tc *TestClient) GetMe() (*UserResponse, error) {
	var result UserResponse
	if err := tc.getJSON("/api/v1/auth/me", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History loads the conversation with otherID. query may be empty.
func (tc *TestClient) History(otherID int64, query string) ([]MessageResponse, error) {
	path := fmt.Sprintf("/api/v1/messages/%d", otherID)
	if query != "" {
		path += "?" + query
	}

	var result []MessageResponse
	if err := tc.getJSON(path, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Conversations lists the inbox of the current user
func (tc *TestClient) Conversations() ([]ConversationResponse, error) {
	var result []ConversationResponse
	if err := tc.getJSON("/api/v1/conversations", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Presence reports whether userID has an open connection
func (tc *TestClient) Presence(userID int64) (*PresenceResponse, error) {
	var result PresenceResponse
	if err := tc.getJSON(fmt.Sprintf("/api/v1/users/%d/online", userID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkSold marks productID sold and returns the raw response
func (tc *TestClient) MarkSold(productID int64) (*http.Response, error) {
	return tc.PostJSON(fmt.Sprintf("/api/v1/products/%d/mark-sold", productID), nil)
}

// PostJSON makes a POST request with JSON body, echoing the CSRF cookie
// in the header like the browser client does
func (tc *TestClient) PostJSON(path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token := tc.csrfToken(); token != "" {
		req.Header.Set(middleware.CSRFHeader, token)
	}
	return tc.Do(req)
}

func (tc *TestClient) getJSON(path string, out any) error {
	resp, err := tc.Get(baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s failed with status %d: %s", path, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (tc *TestClient) csrfToken() string {
	u, _ := url.Parse(baseURL)
	for _, cookie := range tc.Jar.Cookies(u) {
		if cookie.Name == middleware.CSRFCookie {
			return cookie.Value
		}
	}
	return ""
}

// Response types
type UserResponse struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	University string `json:"university"`
	Domain     string `json:"domain"`
}

type LoginResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type MessageResponse struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	ProductID  *int64 `json:"product_id"`
	Timestamp  string `json:"timestamp"`
}

type ConversationResponse struct {
	OtherUserID int64           `json:"other_user_id"`
	LastMessage MessageResponse `json:"last_message"`
}

type PresenceResponse struct {
	UserID      int64 `json:"user_id"`
	Online      bool  `json:"online"`
	Connections int   `json:"connections"`
}

// WebSocket helpers

// WSClient represents a WebSocket client for testing
type WSClient struct {
	t        *testing.T
	conn     *websocket.Conn
	mu       sync.Mutex
	messages chan MessageResponse
	done     chan struct{}
	userID   int64
}

// ConnectWebSocket opens a connection for the logged-in user
func (tc *TestClient) ConnectWebSocket() (*WSClient, error) {
	return dialWebSocket(tc.t, tc.userID, tc.accessToken)
}

// dialWebSocket connects to /ws/{userID}, passing token in the query when set.
func dialWebSocket(t *testing.T, userID int64, token string) (*WSClient, error) {
	target := fmt.Sprintf("%s/ws/%d", wsURL, userID)
	if token != "" {
		target += "?token=" + url.QueryEscape(token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.Dial(target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to WebSocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	wsc := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan MessageResponse, 100),
		done:     make(chan struct{}),
		userID:   userID,
	}

	go wsc.readLoop()

	return wsc, nil
}

// readLoop reads messages from the WebSocket connection
func (wsc *WSClient) readLoop() {
	defer close(wsc.messages)

	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg MessageResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			wsc.t.Logf("failed to unmarshal WebSocket message: %v", err)
			continue
		}

		select {
		case wsc.messages <- msg:
		case <-wsc.done:
			return
		default:
			wsc.t.Log("message channel full, dropping message")
		}
	}
}

// SendMessage sends a chat payload from this connection's user
func (wsc *WSClient) SendMessage(receiverID int64, content string, productID *int64) error {
	return wsc.SendRaw(map[string]any{
		"sender_id":   wsc.userID,
		"receiver_id": receiverID,
		"content":     content,
		"product_id":  productID,
	})
}

// SendRaw writes payload as JSON without any validation
func (wsc *WSClient) SendRaw(payload any) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	return wsc.conn.WriteJSON(payload)
}

// WaitForMessage waits for a message matching the predicate
func (wsc *WSClient) WaitForMessage(timeout time.Duration, predicate func(MessageResponse) bool) (*MessageResponse, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-wsc.messages:
			if !ok {
				return nil, fmt.Errorf("connection closed while waiting for message")
			}
			if predicate(msg) {
				return &msg, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for message")
		}
	}
}

// WaitForContent waits for a chat message with specific content
func (wsc *WSClient) WaitForContent(content string, timeout time.Duration) (*MessageResponse, error) {
	return wsc.WaitForMessage(timeout, func(msg MessageResponse) bool {
		return msg.Content == content
	})
}

// ExpectSilence fails when any message arrives within d
func (wsc *WSClient) ExpectSilence(d time.Duration) error {
	select {
	case msg, ok := <-wsc.messages:
		if !ok {
			return fmt.Errorf("connection closed")
		}
		return fmt.Errorf("unexpected message %d: %q", msg.ID, msg.Content)
	case <-time.After(d):
		return nil
	}
}

// Close closes the WebSocket connection
func (wsc *WSClient) Close() error {
	close(wsc.done)
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	return wsc.conn.Close()
}

// Test helpers

// uniqueEmail generates a unique email for testing
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@campus.edu", prefix, time.Now().UnixNano())
}

// setupTestUser registers and logs in a test user, returning the client
func setupTestUser(t *testing.T, prefix string) *TestClient {
	t.Helper()

	client := NewTestClient(t)
	email := uniqueEmail(prefix)

	if _, err := client.RegisterUser(email, testPassword, "Test "+prefix, "Campus University"); err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	if _, err := client.LoginUser(email, testPassword); err != nil {
		t.Fatalf("failed to login user: %v", err)
	}

	return client
}

// connectUser opens a WebSocket for client and registers its cleanup
func connectUser(t *testing.T, client *TestClient) *WSClient {
	t.Helper()

	ws, err := client.ConnectWebSocket()
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	waitFor(t, 5*time.Second, func() bool {
		return testRegistry.ConnectionCount(client.userID) > 0
	})
	return ws
}

// seedProduct inserts a listing owned by sellerID. When withImage is set a
// file is written to the images dir and referenced by the listing.
func seedProduct(t *testing.T, sellerID int64, withImage bool) (int64, string) {
	t.Helper()

	var imageURL, imagePath string
	if withImage {
		name := fmt.Sprintf("product_%d.jpg", time.Now().UnixNano())
		imagePath = filepath.Join(imagesDir, name)
		if err := os.WriteFile(imagePath, []byte("jpeg"), 0o644); err != nil {
			t.Fatalf("failed to write image: %v", err)
		}
		imageURL = service.ImageURLPrefix + name
	}

	var id int64
	err := testDB.QueryRowContext(context.Background(),
		`INSERT INTO products (seller_id, name, image_url) VALUES ($1, $2, NULLIF($3, '')) RETURNING id`,
		sellerID, "Used textbook", imageURL).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
	return id, imagePath
}

// productExists reports whether the listing row is still present
func productExists(t *testing.T, productID int64) bool {
	t.Helper()

	var exists bool
	err := testDB.QueryRowContext(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to query product: %v", err)
	}
	return exists
}

// waitFor polls cond until it holds or timeout elapses
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
