package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

type testHarness struct {
	server  *Server
	httpSrv *httptest.Server
	wsURL   string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	config := DefaultTOMLConfig()
	config.Auth.JWTSecret = "journey-test-secret"
	config.Auth.BcryptCost = 4 // keep password hashing fast in tests

	srv, err := NewServer(filepath.Join(t.TempDir(), "test.db"), config)
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		srv.db.Close()
	})

	return &testHarness{
		server:  srv,
		httpSrv: httpSrv,
		wsURL:   "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws",
	}
}

// apiClient is one logged-in (or anonymous) user's view of the API.
type apiClient struct {
	harness *testHarness
	client  *http.Client
	userID  string
}

func (h *testHarness) newClient(t *testing.T) *apiClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{
		harness: h,
		client:  &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
}

// do sends a JSON request and decodes the envelope response.
func (c *apiClient) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, c.harness.httpSrv.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// signup registers and logs in a user, returning its ID.
func (c *apiClient) signup(t *testing.T, username string) string {
	t.Helper()

	status, _ := c.do(t, http.MethodPost, "/api/v1/user/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp := c.do(t, http.MethodPost, "/api/v1/user/login", map[string]string{
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resp["success"])

	user, ok := resp["user"].(map[string]any)
	require.True(t, ok)
	c.userID = user["_id"].(string)
	require.NotEmpty(t, c.userID)
	return c.userID
}

// connect opens the user's live websocket connection.
func (c *apiClient) connect(t *testing.T) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(c.harness.wsURL+"?userId="+c.userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

type eventFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readEvent reads frames until one with the wanted event type arrives,
// skipping presence broadcasts emitted by unrelated transitions.
func readEvent(t *testing.T, ws *websocket.Conn, event string) eventFrame {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame eventFrame
		require.NoError(t, ws.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
	t.Fatalf("no %s event arrived", event)
	return eventFrame{}
}

// ---------------------------------------------------------------------------
// Journeys
// ---------------------------------------------------------------------------

func TestAccountJourney(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	aliceID := alice.signup(t, "alice")

	// Duplicate registrations are rejected.
	status, _ := alice.do(t, http.MethodPost, "/api/v1/user/register", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "pw123456",
	})
	require.Equal(t, http.StatusConflict, status)

	// Wrong password.
	status, _ = alice.do(t, http.MethodPost, "/api/v1/user/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	// Profile edit and read-back.
	status, _ = alice.do(t, http.MethodPost, "/api/v1/user/profile/edit", map[string]string{
		"name": "Alice A.", "bio": "hello there",
	})
	require.Equal(t, http.StatusOK, status)

	status, resp := alice.do(t, http.MethodGet, "/api/v1/user/"+aliceID+"/profile", nil)
	require.Equal(t, http.StatusOK, status)
	user := resp["user"].(map[string]any)
	require.Equal(t, "Alice A.", user["name"])
	require.Equal(t, "hello there", user["bio"])

	// Suggested users exclude self; search finds by substring.
	bob := h.newClient(t)
	bob.signup(t, "bobby")

	status, resp = alice.do(t, http.MethodGet, "/api/v1/user/suggestedusers", nil)
	require.Equal(t, http.StatusOK, status)
	suggested := resp["users"].([]any)
	require.Len(t, suggested, 1)

	status, resp = alice.do(t, http.MethodGet, "/api/v1/user/search?keyword=bob", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["users"].([]any), 1)

	// Logout clears the session.
	status, _ = alice.do(t, http.MethodGet, "/api/v1/user/logout", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = alice.do(t, http.MethodGet, "/api/v1/user/suggestedusers", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h := newTestHarness(t)

	anon := h.newClient(t)
	status, resp := anon.do(t, http.MethodGet, "/api/v1/post/getallpost", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, false, resp["success"])
}

func TestPostJourney(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	aliceID := alice.signup(t, "alice")
	bob := h.newClient(t)
	bob.signup(t, "bob")

	// Alice posts.
	status, resp := alice.do(t, http.MethodPost, "/api/v1/post/addpost", map[string]string{
		"caption": "first light", "image": "https://cdn.example.com/p1.jpg",
	})
	require.Equal(t, http.StatusCreated, status)
	postID := resp["post"].(map[string]any)["_id"].(string)

	// Bob's feed is empty until he follows Alice; explore shows her post.
	status, resp = bob.do(t, http.MethodGet, "/api/v1/post/getallpost", nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, resp["posts"].([]any))

	status, resp = bob.do(t, http.MethodGet, "/api/v1/post/getallpostexplore", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["posts"].([]any), 1)

	status, _ = bob.do(t, http.MethodPost, "/api/v1/user/followOrUnfollow/"+aliceID, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp = bob.do(t, http.MethodGet, "/api/v1/post/getallpost", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["posts"].([]any), 1)

	// Bob comments and likes.
	status, _ = bob.do(t, http.MethodPost, "/api/v1/post/"+postID+"/comment", map[string]string{
		"text": "nice shot",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp = bob.do(t, http.MethodPost, "/api/v1/post/"+postID+"/comment/all", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["comments"].([]any), 1)

	status, _ = bob.do(t, http.MethodGet, "/api/v1/post/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, status)

	// Bookmark toggles.
	status, resp = bob.do(t, http.MethodGet, "/api/v1/post/"+postID+"/bookmarks", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "saved", resp["type"])
	status, resp = bob.do(t, http.MethodGet, "/api/v1/post/"+postID+"/bookmarks", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "unsaved", resp["type"])

	// Only the author can delete.
	status, _ = bob.do(t, http.MethodDelete, "/api/v1/post/delete/"+postID, nil)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = alice.do(t, http.MethodDelete, "/api/v1/post/delete/"+postID, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = bob.do(t, http.MethodGet, "/api/v1/post/"+postID+"/like", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestLikeNotificationReachesOwnerOnly(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	alice.signup(t, "alice")
	bob := h.newClient(t)
	bobID := bob.signup(t, "bob")

	status, resp := alice.do(t, http.MethodPost, "/api/v1/post/addpost", map[string]string{
		"caption": "sunset",
	})
	require.Equal(t, http.StatusCreated, status)
	postID := resp["post"].(map[string]any)["_id"].(string)

	aliceWS := alice.connect(t)
	readEvent(t, aliceWS, "online-users")

	status, _ = bob.do(t, http.MethodGet, "/api/v1/post/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, status)

	frame := readEvent(t, aliceWS, "notification")
	var notif map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &notif))
	require.Equal(t, "like", notif["type"])
	require.Equal(t, bobID, notif["userId"])
	require.Equal(t, postID, notif["postId"])
	details := notif["userDetails"].(map[string]any)
	require.Equal(t, "bob", details["username"])

	// Liking your own post does not notify anyone.
	status, _ = alice.do(t, http.MethodGet, "/api/v1/post/"+postID+"/dislike", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = alice.do(t, http.MethodGet, "/api/v1/post/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, aliceWS.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray eventFrame
	err := aliceWS.ReadJSON(&stray)
	require.Error(t, err, "unexpected frame %v after self-like", stray.Event)
}

func TestMessageJourney(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	aliceID := alice.signup(t, "alice")
	bob := h.newClient(t)
	bobID := bob.signup(t, "bob")

	bobWS := bob.connect(t)
	readEvent(t, bobWS, "online-users")

	// Online receiver gets the pushed message.
	status, resp := alice.do(t, http.MethodPost, "/api/v1/message/send/"+bobID, map[string]string{
		"textMessage": "hey bob",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, true, resp["success"])

	frame := readEvent(t, bobWS, "new-message")
	var pushed map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &pushed))
	require.Equal(t, "hey bob", pushed["message"])
	require.Equal(t, aliceID, pushed["senderId"])

	// Offline receiver: send still succeeds, history has both.
	bobWS.Close()
	require.Eventually(t, func() bool {
		_, ok := h.server.Hub().Registry().Lookup(bobID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = alice.do(t, http.MethodPost, "/api/v1/message/send/"+bobID, map[string]string{
		"textMessage": "you there?",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp = bob.do(t, http.MethodGet, "/api/v1/message/all/"+aliceID, nil)
	require.Equal(t, http.StatusOK, status)
	messages := resp["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	require.Equal(t, "hey bob", first["message"])

	// Messaging an unknown user fails cleanly.
	status, _ = alice.do(t, http.MethodPost, "/api/v1/message/send/nobody", map[string]string{
		"textMessage": "hello?",
	})
	require.Equal(t, http.StatusNotFound, status)
}

func TestFollowNotification(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	aliceID := alice.signup(t, "alice")
	bob := h.newClient(t)
	bobID := bob.signup(t, "bob")

	aliceWS := alice.connect(t)
	readEvent(t, aliceWS, "online-users")

	status, _ := bob.do(t, http.MethodPost, "/api/v1/user/followOrUnfollow/"+aliceID, nil)
	require.Equal(t, http.StatusOK, status)

	frame := readEvent(t, aliceWS, "notification")
	var notif map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &notif))
	require.Equal(t, "follow", notif["type"])
	require.Equal(t, bobID, notif["userId"])
}

func TestPresenceThroughFullServer(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	aliceID := alice.signup(t, "alice")
	bob := h.newClient(t)
	bobID := bob.signup(t, "bob")

	aliceWS := alice.connect(t)
	readEvent(t, aliceWS, "online-users")

	bob.connect(t)

	// Alice eventually sees both users online.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "never saw both users online")
		frame := readEvent(t, aliceWS, "online-users")
		var online []string
		require.NoError(t, json.Unmarshal(frame.Data, &online))
		if len(online) == 2 {
			require.ElementsMatch(t, []string{aliceID, bobID}, online)
			break
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)

	resp, err := http.Get(h.httpSrv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHarness(t)

	alice := h.newClient(t)
	alice.signup(t, "alice")
	ws := alice.connect(t)
	readEvent(t, ws, "online-users")

	resp, err := http.Get(h.httpSrv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "glimpse_online_users")
	require.Contains(t, string(raw), "glimpse_connections_total")
}
