package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"hobby-relay/auth"
	"hobby-relay/contract"
	"hobby-relay/moderation"
	"hobby-relay/observability"
	"hobby-relay/repositories"
	"hobby-relay/runtime"
	"hobby-relay/runtime/workers"
	"hobby-relay/services"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type relay struct {
	http     *httptest.Server
	registry *runtime.Registry
	verifier *auth.Verifier
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		BufferSize:        64,
		WriteWait:         time.Second,
		PongWait:          5 * time.Second,
		MaxMessageSize:    4096,
		RateLimitBurst:    100,
		RateLimitInterval: time.Second,
	}
}

func newRelay(t *testing.T, verifier *auth.Verifier) *relay {
	t.Helper()
	return newRelayWith(t, verifier, nil, defaultSessionConfig())
}

func newRelayWith(t *testing.T, verifier *auth.Verifier, index contract.ISearchIndex, config SessionConfig) *relay {
	t.Helper()
	req := require.New(t)
	log := slog.New(slog.DiscardHandler)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := repositories.NewMessageRepository(db, log)
	req.NoError(err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})

	registry := runtime.NewRegistry()
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond)
	dispatcher := runtime.NewDispatcher(log, supervisor, registry, store, index, nil, 2, 64, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	filter, err := moderation.NewTopicFilter([]string{"religion", "politics", "god"})
	req.NoError(err)
	service := services.NewChatService(log, dispatcher, registry, store, index, filter, nil, services.ChatConfig{
		ReplayLimit:      50,
		HistoryLimit:     100,
		MaxMessageLength: 500,
		StorageTimeout:   time.Second,
	})

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg, registry)
	health := observability.NewHealthMonitor(log, registry, time.Minute)
	server := NewChatServer(log, service, verifier, health, reg, metrics, []string{"https://hobbies.example"}, config)

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(func() {
		server.CloseSessions()
		ts.Close()
	})
	return &relay{http: ts, registry: registry, verifier: verifier}
}

func (r *relay) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(r.wsURL(query), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (r *relay) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws?" + query
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inbound{Event: event, Data: raw}))
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readMessages(t *testing.T, conn *websocket.Conn) []MessagePayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, EventPreviousMessages, msg.Event)
	var messages []MessagePayload
	require.NoError(t, json.Unmarshal(msg.Data, &messages))
	return messages
}

func readMessage(t *testing.T, conn *websocket.Conn) MessagePayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, EventMessage, msg.Event, string(msg.Data))
	var message MessagePayload
	require.NoError(t, json.Unmarshal(msg.Data, &message))
	return message
}

func readError(t *testing.T, conn *websocket.Conn) ErrorPayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, EventError, msg.Event, string(msg.Data))
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	return payload
}

func TestChatServer_Chess_Scenario(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)

	// Given Alice joins the empty chess room
	alice := relay.dial(t, "name=Alice")
	send(t, alice, EventJoinRoom, "chess")
	req.Empty(readMessages(t, alice))

	// When she says hello, pretending to be someone else
	send(t, alice, EventChatMessage, ChatPayload{Room: "chess", Sender: "Mallory", Text: "hello"})

	// Then the message is echoed back with her name and a server timestamp
	echo := readMessage(t, alice)
	req.Equal("Alice", echo.Sender)
	req.Equal("hello", echo.Text)
	req.Equal("chess", echo.Room)
	req.NotEmpty(echo.ID)
	req.WithinDuration(time.Now(), echo.Timestamp, 5*time.Second)

	// And Bob joining at handshake gets it replayed
	bob := relay.dial(t, "name=Bob&room=chess")
	history := readMessages(t, bob)
	req.Len(history, 1)
	req.Equal(echo, history[0])

	// And both receive the next message
	send(t, bob, EventChatMessage, ChatPayload{Text: "hi Alice"})
	req.Equal("hi Alice", readMessage(t, bob).Text)
	fromBob := readMessage(t, alice)
	req.Equal("Bob", fromBob.Sender)
}

func TestChatServer_Banned_Topic(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)
	conn := relay.dial(t, "name=Alice")

	send(t, conn, EventJoinRoom, "Politics")

	payload := readError(t, conn)
	req.Equal("banned_topic", payload.Reason)
	req.Equal("this hobby is not allowed", payload.Message)
	req.Zero(relay.registry.Rooms())
}

func TestChatServer_Rejections_Are_Not_Broadcast(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)
	conn := relay.dial(t, "name=Alice")

	// Before joining
	send(t, conn, EventChatMessage, ChatPayload{Text: "anyone?"})
	req.Equal("not_in_room", readError(t, conn).Reason)

	send(t, conn, EventJoinRoom, "chess")
	readMessages(t, conn)

	// Whitespace only
	send(t, conn, EventChatMessage, ChatPayload{Room: "chess", Text: "   \t"})
	req.Equal("empty_message", readError(t, conn).Reason)

	// Another room
	send(t, conn, EventChatMessage, ChatPayload{Room: "go", Text: "wrong room"})
	req.Equal("room_mismatch", readError(t, conn).Reason)

	// Garbage
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	req.Equal("invalid_payload", readError(t, conn).Reason)
	send(t, conn, "leaveRoom", "chess")
	req.Equal("invalid_payload", readError(t, conn).Reason)

	// The next event is the first valid message
	send(t, conn, EventChatMessage, ChatPayload{Text: "valid"})
	req.Equal("valid", readMessage(t, conn).Text)

	resp, err := http.Get(relay.http.URL + "/api/messages/chess")
	req.NoError(err)
	defer resp.Body.Close()
	var history []MessagePayload
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 1)
}

func TestChatServer_Rejoin_Moves_Session(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)

	alice := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, alice)
	bob := relay.dial(t, "name=Bob&room=go")
	readMessages(t, bob)

	// When Alice moves to go
	send(t, alice, EventJoinRoom, "go")
	readMessages(t, alice)
	req.Equal(1, relay.registry.Rooms())

	// Then she receives go messages only
	send(t, bob, EventChatMessage, ChatPayload{Text: "welcome"})
	req.Equal("welcome", readMessage(t, alice).Text)
}

func TestChatServer_Disconnect_Leaves_Room(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)

	conn := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, conn)
	req.Equal(1, relay.registry.Sessions())

	req.NoError(conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	req.Eventually(func() bool {
		return relay.registry.Sessions() == 0 && relay.registry.Rooms() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatServer_Silent_Client_Is_Evicted(t *testing.T) {
	req := require.New(t)
	config := defaultSessionConfig()
	config.PongWait = 300 * time.Millisecond
	relay := newRelayWith(t, nil, nil, config)

	// Given a client that joined then stopped reading, so it never answers pings
	relay.dial(t, "name=Alice&room=chess")
	req.Eventually(func() bool { return relay.registry.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	// Then the read deadline expires and the session leaves its room
	req.Eventually(func() bool { return relay.registry.Sessions() == 0 }, 3*time.Second, 20*time.Millisecond)
	req.Zero(relay.registry.Rooms())
}

func TestChatServer_Rate_Limited(t *testing.T) {
	req := require.New(t)
	config := defaultSessionConfig()
	config.RateLimitBurst = 2
	config.RateLimitInterval = time.Minute
	relay := newRelayWith(t, nil, nil, config)

	bob := relay.dial(t, "name=Bob&room=chess")
	readMessages(t, bob)
	alice := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, alice)

	// When Alice sends more than her burst
	for _, text := range []string{"e4", "Nf3", "Bc4"} {
		send(t, alice, EventChatMessage, ChatPayload{Text: text})
	}

	// Then the first two go through and the third is rejected
	req.Equal("e4", readMessage(t, alice).Text)
	req.Equal("Nf3", readMessage(t, alice).Text)
	req.Equal("rate_limited", readError(t, alice).Reason)

	// And Bob only saw the accepted ones
	req.Equal("e4", readMessage(t, bob).Text)
	req.Equal("Nf3", readMessage(t, bob).Text)
	send(t, bob, EventChatMessage, ChatPayload{Text: "d5"})
	req.Equal("d5", readMessage(t, bob).Text)
}

func TestChatServer_History_Endpoint(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)
	conn := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, conn)

	for i := 0; i < 3; i++ {
		send(t, conn, EventChatMessage, ChatPayload{Text: fmt.Sprintf("move %d", i)})
		readMessage(t, conn)
	}

	resp, err := http.Get(relay.http.URL + "/api/messages/chess")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var history []MessagePayload
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 3)
	for i, message := range history {
		req.Equal(fmt.Sprintf("move %d", i), message.Text)
	}

	// Unknown rooms have an empty history
	empty, err := http.Get(relay.http.URL + "/api/messages/knitting")
	req.NoError(err)
	defer empty.Body.Close()
	var none []MessagePayload
	req.NoError(json.NewDecoder(empty.Body).Decode(&none))
	req.Empty(none)
}

func TestChatServer_Search_Endpoint(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })
	relay := newRelayWith(t, nil, repositories.NewSearchIndex(writer, slog.New(slog.DiscardHandler)), defaultSessionConfig())

	conn := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, conn)
	send(t, conn, EventChatMessage, ChatPayload{Text: "The queen's gambit is a classic opening"})
	readMessage(t, conn)
	send(t, conn, EventChatMessage, ChatPayload{Text: "Castle early"})
	readMessage(t, conn)

	// Then the message is eventually searchable in its room
	search := func(room, terms string) (int, []SearchHitPayload, error) {
		resp, err := http.Get(fmt.Sprintf("%s/api/rooms/%s/search?q=%s", relay.http.URL, room, terms))
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		var hits []SearchHitPayload
		if resp.StatusCode == http.StatusOK {
			err = json.NewDecoder(resp.Body).Decode(&hits)
		}
		return resp.StatusCode, hits, err
	}
	req.Eventually(func() bool {
		_, hits, err := search("chess", "gambit")
		return err == nil && len(hits) == 1
	}, 2*time.Second, 20*time.Millisecond)

	_, hits, err := search("chess", "gambit")
	req.NoError(err)
	req.Equal("Alice", hits[0].Sender)
	req.Equal("chess", hits[0].Room)

	// And other rooms don't see it
	status, hits, err := search("go", "gambit")
	req.NoError(err)
	req.Equal(http.StatusOK, status)
	req.Empty(hits)

	// And an empty query is a bad request
	status, _, err = search("chess", "")
	req.NoError(err)
	req.Equal(http.StatusBadRequest, status)
}

func TestChatServer_Search_Disabled(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)

	resp, err := http.Get(relay.http.URL + "/api/rooms/chess/search?q=gambit")
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestChatServer_Handshake(t *testing.T) {
	t.Run("Missing name", func(t *testing.T) {
		req := require.New(t)
		relay := newRelay(t, nil)
		_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL("room=chess"), nil)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Disallowed origin", func(t *testing.T) {
		req := require.New(t)
		relay := newRelay(t, nil)
		header := http.Header{"Origin": []string{"https://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL("name=Alice"), header)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Equal(http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Allowed origin", func(t *testing.T) {
		req := require.New(t)
		relay := newRelay(t, nil)
		header := http.Header{"Origin": []string{"HTTPS://Hobbies.Example"}}
		conn, _, err := websocket.DefaultDialer.Dial(relay.wsURL("name=Alice"), header)
		req.NoError(err)
		_ = conn.Close()
	})

	t.Run("Invalid token", func(t *testing.T) {
		req := require.New(t)
		relay := newRelay(t, auth.NewVerifier("secret"))
		_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL("token=forged&name=Alice"), nil)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Valid token joins the hobby room", func(t *testing.T) {
		req := require.New(t)
		relay := newRelay(t, auth.NewVerifier("secret"))
		token, err := relay.verifier.GenerateToken("Alice", "chess", time.Minute)
		req.NoError(err)

		conn := relay.dial(t, "token="+token)
		req.Empty(readMessages(t, conn))
		send(t, conn, EventChatMessage, ChatPayload{Text: "signed"})
		req.Equal("Alice", readMessage(t, conn).Sender)
	})
}

func TestChatServer_Health_And_Metrics(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t, nil)

	resp, err := http.Get(relay.http.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	var stats observability.HealthStats
	req.NoError(json.NewDecoder(resp.Body).Decode(&stats))
	req.Equal("ok", stats.Status)

	conn := relay.dial(t, "name=Alice&room=chess")
	readMessages(t, conn)

	metrics, err := http.Get(relay.http.URL + "/metrics")
	req.NoError(err)
	defer metrics.Body.Close()
	req.Equal(http.StatusOK, metrics.StatusCode)
	body := new(strings.Builder)
	_, err = io.Copy(body, metrics.Body)
	req.NoError(err)
	req.Contains(body.String(), "hobby_relay_connections_total 1")
	req.Contains(body.String(), "hobby_relay_sessions 1")
}
