package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/game"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/gameshowlab/podium/internal/store"
)

// nopBroadcaster satisfies game.Broadcaster for request/response tests.
type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(code string, ev events.Event) {}
func (nopBroadcaster) BroadcastAll(ev events.Event)           {}
func (nopBroadcaster) SendTo(connID string, ev events.Event)  {}
func (nopBroadcaster) JoinRoom(connID, code string)           {}

func setupAPI(t *testing.T) (*game.Coordinator, *httptest.Server) {
	t.Helper()
	coord := game.New(game.DefaultConfig(), store.NewMemoryStore(), nopBroadcaster{}, nil)
	api := New(coord, AdminCreds{Username: "Admin", Password: "Administrator"})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return coord, srv
}

func adminPost(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.SetBasicAuth("Admin", "Administrator")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	resp, err := srv.Client().Post(srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestBeginSessionRequiresAdmin(t *testing.T) {
	_, srv := setupAPI(t)

	resp, err := srv.Client().Post(srv.URL+"/api/session", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, srv := setupAPI(t)

	resp := adminPost(t, srv, http.MethodPost, "/api/session", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Code == "" {
		t.Fatal("expected a session code")
	}

	// Login, snapshot, logout.
	resp = postJSON(t, srv, "/api/login", map[string]string{
		"code": created.Code, "seat": string(session.SeatOne), "name": "Ann",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 login, got %d", resp.StatusCode)
	}
	var login game.LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a possession token")
	}

	snapResp, err := srv.Client().Get(srv.URL + "/api/room?code=" + created.Code)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer snapResp.Body.Close()
	var snap game.RoomSnapshot
	if err := json.NewDecoder(snapResp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Seats[session.SeatOne] == nil || *snap.Seats[session.SeatOne] != "Ann" {
		t.Fatalf("expected Ann in snapshot, got %+v", snap.Seats)
	}

	resp = postJSON(t, srv, "/api/logout", map[string]string{
		"code": created.Code, "seat": string(session.SeatOne),
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 logout, got %d", resp.StatusCode)
	}

	resp = adminPost(t, srv, http.MethodDelete, "/api/session", map[string]string{"code": created.Code})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 end session, got %d", resp.StatusCode)
	}
}

func TestLoginRejectionStatuses(t *testing.T) {
	coord, srv := setupAPI(t)

	code, err := coord.BeginSession(t.Context())
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if _, err := coord.LoginSeat(t.Context(), code, session.SeatOne, "Ann", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{
			name: "seat taken",
			body: map[string]string{"code": code, "seat": string(session.SeatOne), "name": "Bob"},
			want: http.StatusConflict,
		},
		{
			name: "stale code",
			body: map[string]string{"code": "ZZZ-00000", "seat": string(session.SeatOne), "name": "Bob"},
			want: http.StatusGone,
		},
		{
			name: "invalid seat",
			body: map[string]string{"code": code, "seat": "99999", "name": "Bob"},
			want: http.StatusBadRequest,
		},
		{
			name: "missing name",
			body: map[string]string{"code": code, "seat": string(session.SeatOne)},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv, "/api/login", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestRestoreSessionRoundTrip(t *testing.T) {
	coord, srv := setupAPI(t)

	code, err := coord.BeginSession(t.Context())
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	resp := adminPost(t, srv, http.MethodPost, "/api/session/restore", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 restore, got %d", resp.StatusCode)
	}
	var restored struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&restored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restored.Code != code {
		t.Fatalf("expected restored code %q, got %q", code, restored.Code)
	}
}
