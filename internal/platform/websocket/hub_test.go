package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, zerolog.Nop())
}

func mustConnect(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c, err := h.Connect(id)
	if err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	return c
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-c.Outbound():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// ---------------------------------------------------------------------------
// Room ids
// ---------------------------------------------------------------------------

func TestParseRoom(t *testing.T) {
	tests := []struct {
		kind, id string
		want     RoomID
		wantErr  bool
	}{
		{"clinic", "c1", ClinicRoom("c1"), false},
		{"unit", "u1", UnitRoom("u1"), false},
		{"hospital", "h1", HospitalRoom("h1"), false},
		{"global", "", GlobalRoom, false},
		{"global", "x", RoomID{}, true},
		{"unit", "", RoomID{}, true},
		{"ward", "w1", RoomID{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRoom(tt.kind, tt.id)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRoom(%q, %q) err = %v, wantErr %v", tt.kind, tt.id, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRoom(%q, %q) = %v, want %v", tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestRoomID_DistinctKindsSameOwner(t *testing.T) {
	if ClinicRoom("42") == UnitRoom("42") {
		t.Fatal("rooms of different kinds must differ even with the same owner id")
	}
}

// ---------------------------------------------------------------------------
// Hub
// ---------------------------------------------------------------------------

func TestHub_ConnectJoinsGlobal(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.RoomCount(GlobalRoom) != 1 {
		t.Fatalf("expected 1 member in global room, got %d", hub.RoomCount(GlobalRoom))
	}
}

func TestHub_ConnectDuplicateID(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")
	if _, err := hub.Connect("a"); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")

	for i := 0; i < 3; i++ {
		if err := hub.Join("a", UnitRoom("u1")); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if hub.RoomCount(UnitRoom("u1")) != 1 {
		t.Fatalf("expected 1 member, got %d", hub.RoomCount(UnitRoom("u1")))
	}
	if got := hub.MembersOf(UnitRoom("u1")); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected members %v", got)
	}
}

func TestHub_JoinUnknownConnection(t *testing.T) {
	hub := newTestHub(8)
	if err := hub.Join("ghost", UnitRoom("u1")); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	if hub.RoomCount(UnitRoom("u1")) != 0 {
		t.Fatal("unknown connection must not create membership")
	}
}

func TestHub_Leave(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")
	mustConnect(t, hub, "b")
	_ = hub.Join("a", HospitalRoom("h1"))
	_ = hub.Join("b", HospitalRoom("h1"))

	if err := hub.Leave("a", HospitalRoom("h1")); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := hub.MembersOf(HospitalRoom("h1")); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected only b, got %v", got)
	}

	// Leaving a room never joined is fine.
	if err := hub.Leave("a", ClinicRoom("c9")); err != nil {
		t.Fatalf("leave unjoined: %v", err)
	}
}

func TestHub_LeaveGlobalIsNoop(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")
	_ = hub.Leave("a", GlobalRoom)
	if hub.RoomCount(GlobalRoom) != 1 {
		t.Fatal("a live connection must stay in the global room")
	}
}

func TestHub_LeaveAllRunsOnce(t *testing.T) {
	hub := newTestHub(8)
	c := mustConnect(t, hub, "a")
	_ = hub.Join("a", UnitRoom("u1"))
	_ = hub.Join("a", HospitalRoom("h1"))

	if !hub.LeaveAll("a") {
		t.Fatal("first LeaveAll should report cleanup")
	}
	if hub.LeaveAll("a") {
		t.Fatal("second LeaveAll should be a no-op")
	}

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	for _, r := range []RoomID{GlobalRoom, UnitRoom("u1"), HospitalRoom("h1")} {
		if hub.RoomCount(r) != 0 {
			t.Errorf("expected %s to be empty", r)
		}
	}
	if len(hub.Stats()) != 0 {
		t.Errorf("expected no rooms left, got %v", hub.Stats())
	}
	if _, ok := <-c.Outbound(); ok {
		t.Fatal("expected outbound queue to be closed")
	}
}

func TestHub_JoinAfterLeaveAllFails(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")
	hub.LeaveAll("a")
	if err := hub.Join("a", UnitRoom("u1")); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestHub_SendToUnknownIsNoop(t *testing.T) {
	hub := newTestHub(8)
	if hub.Send("ghost", []byte("x")) {
		t.Fatal("send to unknown connection should report false")
	}
}

func TestHub_BroadcastOnlyToMembers(t *testing.T) {
	hub := newTestHub(8)
	in := mustConnect(t, hub, "in")
	out := mustConnect(t, hub, "out")
	_ = hub.Join("in", UnitRoom("u1"))
	_ = hub.Join("out", UnitRoom("u2"))

	if n := hub.broadcast(UnitRoom("u1"), []byte("hello")); n != 1 {
		t.Fatalf("expected 1 recipient, got %d", n)
	}
	if got := drain(in); len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("member got %q", got)
	}
	if got := drain(out); len(got) != 0 {
		t.Fatalf("non-member got %q", got)
	}
}

func TestHub_BroadcastToEmptyRoom(t *testing.T) {
	hub := newTestHub(8)
	if n := hub.broadcast(ClinicRoom("nobody"), []byte("x")); n != 0 {
		t.Fatalf("expected 0 recipients, got %d", n)
	}
}

func TestHub_SlowConsumerEvicted(t *testing.T) {
	hub := newTestHub(1)
	slow := mustConnect(t, hub, "slow")
	fast := mustConnect(t, hub, "fast")

	hub.broadcast(GlobalRoom, []byte("1"))
	drain(fast)
	hub.broadcast(GlobalRoom, []byte("2"))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected slow consumer to be dropped, %d clients left", hub.ClientCount())
	}
	if got := hub.MembersOf(GlobalRoom); len(got) != 1 || got[0] != "fast" {
		t.Fatalf("expected only fast in global, got %v", got)
	}
	if got := drain(fast); len(got) != 1 || string(got[0]) != "2" {
		t.Fatalf("fast consumer got %q", got)
	}

	// The evicted client keeps what was queued before eviction, then sees close.
	if got := drain(slow); len(got) != 1 || string(got[0]) != "1" {
		t.Fatalf("slow consumer got %q", got)
	}
}

func TestHub_ConcurrentMembershipChanges(t *testing.T) {
	hub := newTestHub(1024)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c-%d", i)
		mustConnect(t, hub, id)
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = hub.Join(id, HospitalRoom("h1"))
				_ = hub.Leave(id, HospitalRoom("h1"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.broadcast(HospitalRoom("h1"), []byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			_ = hub.Join(id, UnitRoom("u1"))
		}()
	}
	wg.Wait()

	if hub.RoomCount(HospitalRoom("h1")) != 0 {
		t.Fatalf("expected h1 empty, got %d", hub.RoomCount(HospitalRoom("h1")))
	}
	if hub.RoomCount(UnitRoom("u1")) != n {
		t.Fatalf("expected %d in u1, got %d", n, hub.RoomCount(UnitRoom("u1")))
	}

	for i := 0; i < n; i++ {
		hub.LeaveAll(fmt.Sprintf("c-%d", i))
	}
	if hub.ClientCount() != 0 || len(hub.Stats()) != 0 {
		t.Fatalf("expected empty hub, clients=%d rooms=%v", hub.ClientCount(), hub.Stats())
	}
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

func decodeEnvelope(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid payload %q: %v", data, err)
	}
	return m
}

func TestRouter_PublishTargetsAndGlobal(t *testing.T) {
	hub := newTestHub(8)
	unit := mustConnect(t, hub, "unit")
	hosp := mustConnect(t, hub, "hosp")
	admin := mustConnect(t, hub, "admin")
	_ = hub.Join("unit", UnitRoom("u1"))
	_ = hub.Join("hosp", HospitalRoom("h1"))

	router := NewRouter(hub, zerolog.Nop())
	err := router.Publish(context.Background(), DomainEvent{
		Type:        EventNewReferral,
		TargetRooms: []RoomID{UnitRoom("u1"), HospitalRoom("h1")},
		Body:        map[string]string{"id": "r1"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	err = router.Publish(context.Background(), DomainEvent{
		Type:       EventAdminStatsUpdate,
		AlsoGlobal: true,
		Body:       map[string]string{"action": "referral_created"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, c := range map[string]*Client{"unit": unit, "hosp": hosp} {
		got := drain(c)
		if len(got) != 2 {
			t.Fatalf("%s: expected 2 payloads, got %d", name, len(got))
		}
		first := decodeEnvelope(t, got[0])
		if first["type"] != string(EventNewReferral) {
			t.Errorf("%s: expected new_referral first, got %v", name, first["type"])
		}
		if _, ok := first["timestamp"]; !ok {
			t.Errorf("%s: expected timestamp", name)
		}
		if entity, _ := first["entity"].(map[string]interface{}); entity["id"] != "r1" {
			t.Errorf("%s: unexpected entity %v", name, first["entity"])
		}
	}
	got := drain(admin)
	if len(got) != 1 || decodeEnvelope(t, got[0])["type"] != string(EventAdminStatsUpdate) {
		t.Fatalf("admin expected only admin_stats_update, got %q", got)
	}
}

func TestRouter_DuplicateRoomsDeliverOnce(t *testing.T) {
	hub := newTestHub(8)
	c := mustConnect(t, hub, "a")
	router := NewRouter(hub, zerolog.Nop())

	_ = router.Publish(context.Background(), DomainEvent{
		Type:        EventBedCountUpdated,
		TargetRooms: []RoomID{GlobalRoom, GlobalRoom},
		AlsoGlobal:  true,
	})
	if got := drain(c); len(got) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(got))
	}
}

func TestRouter_TargetRoomPlusGlobalDeliversOnce(t *testing.T) {
	hub := newTestHub(8)
	member := mustConnect(t, hub, "unit")
	other := mustConnect(t, hub, "other")
	_ = hub.Join("unit", UnitRoom("u1"))
	router := NewRouter(hub, zerolog.Nop())

	err := router.Publish(context.Background(), DomainEvent{
		Type:        EventNewReferral,
		TargetRooms: []RoomID{UnitRoom("u1")},
		AlsoGlobal:  true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := drain(member); len(got) != 1 {
		t.Fatalf("room member expected exactly 1 delivery, got %d", len(got))
	}
	if got := drain(other); len(got) != 1 {
		t.Fatalf("global member expected exactly 1 delivery, got %d", len(got))
	}

	rooms := DomainEvent{TargetRooms: []RoomID{HospitalRoom("h1"), GlobalRoom}}.Rooms()
	if len(rooms) != 1 || rooms[0] != GlobalRoom {
		t.Fatalf("expected only the global room, got %v", rooms)
	}
}

func TestRouter_EncodingFailureIsolatedPerRoom(t *testing.T) {
	hub := newTestHub(8)
	unit := mustConnect(t, hub, "unit")
	hosp := mustConnect(t, hub, "hosp")
	_ = hub.Join("unit", UnitRoom("u1"))
	_ = hub.Join("hosp", HospitalRoom("h1"))

	router := NewRouter(hub, zerolog.Nop())
	calls := 0
	router.marshal = func(v interface{}) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return json.Marshal(v)
	}

	err := router.Publish(context.Background(), DomainEvent{
		Type:        EventNewReferral,
		TargetRooms: []RoomID{UnitRoom("u1"), HospitalRoom("h1")},
	})
	if !errors.Is(err, apperr.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unit:u1") {
		t.Errorf("expected failing room in error, got %v", err)
	}
	if got := drain(unit); len(got) != 0 {
		t.Fatalf("failed room should receive nothing, got %q", got)
	}
	if got := drain(hosp); len(got) != 1 {
		t.Fatalf("other room should still receive the event, got %d", len(got))
	}
}

func TestRouter_PerRoomOrder(t *testing.T) {
	hub := newTestHub(128)
	a := mustConnect(t, hub, "a")
	b := mustConnect(t, hub, "b")
	_ = hub.Join("a", ClinicRoom("c1"))
	_ = hub.Join("b", ClinicRoom("c1"))
	router := NewRouter(hub, zerolog.Nop())

	for i := 0; i < 50; i++ {
		_ = router.Publish(context.Background(), DomainEvent{
			Type:        EventReferralResponse,
			TargetRooms: []RoomID{ClinicRoom("c1")},
			Body:        i,
		})
	}

	seq := func(c *Client) []int {
		var out []int
		for _, p := range drain(c) {
			out = append(out, int(decodeEnvelope(t, p)["entity"].(float64)))
		}
		return out
	}
	sa, sb := seq(a), seq(b)
	if len(sa) != 50 || !sort.IntsAreSorted(sa) {
		t.Fatalf("a saw out-of-order or missing events: %v", sa)
	}
	if fmt.Sprint(sa) != fmt.Sprint(sb) {
		t.Fatal("members of one room must observe the same order")
	}
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	h := NewHandler(newTestHub(8), DefaultHandlerConfig(), zerolog.Nop())
	g := e.Group("")
	h.RegisterRoutes(g)
	h.RegisterStatsRoute(g)

	paths := map[string]bool{}
	for _, r := range e.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"GET /ws", "GET /ws/stats"} {
		if !paths[want] {
			t.Errorf("missing route %s", want)
		}
	}
}

func TestHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	h := NewHandler(newTestHub(8), DefaultHandlerConfig(), zerolog.Nop())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_ConnectWithoutSubject(t *testing.T) {
	h := NewHandler(newTestHub(8), DefaultHandlerConfig(), zerolog.Nop())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())

	err := h.HandleConnect(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestCanJoin(t *testing.T) {
	clinic := auth.Subject{ID: "c1", Type: auth.SubjectClinic}
	unit := auth.Subject{ID: "u1", Type: auth.SubjectUnit, HospitalID: "h1"}
	admin := auth.Subject{ID: "a", Type: auth.SubjectAdmin}

	tests := []struct {
		name    string
		subject auth.Subject
		room    RoomID
		want    bool
	}{
		{"clinic own room", clinic, ClinicRoom("c1"), true},
		{"clinic other clinic", clinic, ClinicRoom("c2"), false},
		{"clinic unit room", clinic, UnitRoom("u1"), false},
		{"clinic hospital room", clinic, HospitalRoom("h1"), false},
		{"unit own room", unit, UnitRoom("u1"), true},
		{"unit other unit", unit, UnitRoom("u2"), false},
		{"unit own hospital", unit, HospitalRoom("h1"), true},
		{"unit other hospital", unit, HospitalRoom("h2"), false},
		{"unit without hospital", auth.Subject{ID: "u1", Type: auth.SubjectUnit}, HospitalRoom(""), false},
		{"admin any room", admin, HospitalRoom("h9"), true},
		{"global for everyone", clinic, GlobalRoom, true},
	}
	for _, tt := range tests {
		if got := CanJoin(tt.subject, tt.room); got != tt.want {
			t.Errorf("%s: CanJoin = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHandler_ProcessRepliesOnFailure(t *testing.T) {
	hub := newTestHub(8)
	client := mustConnect(t, hub, "a")
	h := NewHandler(hub, DefaultHandlerConfig(), zerolog.Nop())
	clinic := auth.Subject{ID: "c1", Type: auth.SubjectClinic}

	reply := func() ControlReply {
		t.Helper()
		got := drain(client)
		if len(got) != 1 {
			t.Fatalf("expected exactly one reply, got %d", len(got))
		}
		var r ControlReply
		if err := json.Unmarshal(got[0], &r); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		return r
	}

	h.process(client, clinic, ClientMessage{Action: "join", Room: RoomRef{Kind: "unit", ID: "u1"}})
	if r := reply(); r.Type != "error" || r.Room == nil || *r.Room != UnitRoom("u1") {
		t.Fatalf("expected error reply naming the room, got %+v", r)
	}
	if hub.RoomCount(UnitRoom("u1")) != 0 {
		t.Fatal("refused join must not change membership")
	}

	h.process(client, clinic, ClientMessage{Action: "join", Room: RoomRef{Kind: "clinic", ID: "c1"}})
	if r := reply(); r.Type != "ack" {
		t.Fatalf("expected ack, got %+v", r)
	}
	h.process(client, clinic, ClientMessage{Action: "leave", Room: RoomRef{Kind: "clinic", ID: "c1"}})
	if r := reply(); r.Type != "ack" || hub.RoomCount(ClinicRoom("c1")) != 0 {
		t.Fatalf("expected ack and empty room, got %+v", r)
	}
}

func TestHandler_Stats(t *testing.T) {
	hub := newTestHub(8)
	mustConnect(t, hub, "a")
	_ = hub.Join("a", UnitRoom("u1"))
	h := NewHandler(hub, DefaultHandlerConfig(), zerolog.Nop())

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws/stats", nil), rec)
	if err := h.HandleStats(c); err != nil {
		t.Fatalf("stats: %v", err)
	}

	var body struct {
		Connections int        `json:"connections"`
		Rooms       []RoomStat `json:"rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Connections != 1 || len(body.Rooms) != 2 {
		t.Fatalf("unexpected stats %+v", body)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := newTestHub(8)
	h := NewHandler(hub, DefaultHandlerConfig(), zerolog.Nop())
	router := NewRouter(hub, zerolog.Nop())

	e := echo.New()
	e.Use(auth.DevAuthMiddleware(auth.JWTConfig{}))
	h.RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, http.Header{
		auth.HeaderSubjectID:   []string{"u-ws"},
		auth.HeaderSubjectType: []string{string(auth.SubjectUnit)},
		auth.HeaderHospitalID:  []string{"h-ws"},
	})
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := conn.WriteJSON(ClientMessage{Action: "join", Room: RoomRef{Kind: "unit", ID: "u-ws"}}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	var ack ControlReply
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("failed to read ack: %v", err)
	}
	if ack.Type != "ack" || ack.Room == nil || *ack.Room != UnitRoom("u-ws") {
		t.Fatalf("unexpected ack %+v", ack)
	}

	err = router.Publish(context.Background(), DomainEvent{
		Type:        EventNewReferral,
		TargetRooms: []RoomID{UnitRoom("u-ws")},
		Body:        map[string]string{"id": "r-ws"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var env struct {
		Type   EventType         `json:"type"`
		Entity map[string]string `json:"entity"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if env.Type != EventNewReferral || env.Entity["id"] != "r-ws" {
		t.Fatalf("unexpected event %+v", env)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "join", Room: RoomRef{Kind: "ward", ID: "x"}}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	var rejected ControlReply
	if err := conn.ReadJSON(&rejected); err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if rejected.Type != "error" {
		t.Fatalf("expected error reply, got %+v", rejected)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "join", Room: RoomRef{Kind: "unit", ID: "u-other"}}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	var forbidden ControlReply
	if err := conn.ReadJSON(&forbidden); err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if forbidden.Type != "error" || hub.RoomCount(UnitRoom("u-other")) != 0 {
		t.Fatalf("joining another unit's room must be refused, got %+v", forbidden)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	if hub.RoomCount(UnitRoom("u-ws")) != 0 {
		t.Fatal("disconnect should clear room membership")
	}
}
