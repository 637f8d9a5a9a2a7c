package main

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWsURL(t *testing.T) {
	req := require.New(t)

	raw := wsURL(Config{RelayURL: "http://localhost:8080", Name: "Alice Doe", Room: "chess"})
	req.True(strings.HasPrefix(raw, "ws://localhost:8080/ws?"))
	parsed, err := url.Parse(raw)
	req.NoError(err)
	req.Equal("Alice Doe", parsed.Query().Get("name"))
	req.Equal("chess", parsed.Query().Get("room"))

	// A token hides the plain identity
	raw = wsURL(Config{RelayURL: "https://relay.example", Name: "Alice", Token: "abc"})
	parsed, err = url.Parse(raw)
	req.NoError(err)
	req.Equal("wss", parsed.Scheme)
	req.Equal("abc", parsed.Query().Get("token"))
	req.Empty(parsed.Query().Get("name"))
}

func TestSenderColour_Is_Stable(t *testing.T) {
	require.Equal(t, senderColour("Alice"), senderColour("Alice"))
}

func TestToDomain_Keeps_Ids(t *testing.T) {
	req := require.New(t)
	id := "6f1c9a8e-2f4b-4b8e-9d55-0d6c1f3b7a10"

	messages := toDomain([]message{{ID: id, Room: "chess", Sender: "Alice", Text: "e4"}, {ID: "not-a-uuid"}})

	req.Len(messages, 2)
	req.Equal(id, messages[0].ID.String())
	req.Equal("chess", messages[0].Room.String())
	req.NotEqual(messages[0].ID, messages[1].ID)
}

func TestClient_Room_Changes_Only_Once_Joined(t *testing.T) {
	req := require.New(t)
	c := newClient(Config{Room: "chess"}, nil)

	// Given the handshake join is replayed with an empty history
	req.Equal("chess", c.joined(nil))
	req.Equal("chess", c.currentRoom())

	// When a join is refused
	req.Equal("politics", c.requestJoin(" politics "))
	req.Equal("chess", c.currentRoom())
	c.rejected("banned_topic")

	// Then the client stays in its room
	req.Equal("chess", c.currentRoom())

	// When a join is accepted
	c.requestJoin("go")
	c.rejected("rate_limited")
	req.Equal("go", c.joined([]message{{Room: "go", Text: "komi"}}))
	req.Equal("go", c.currentRoom())
}
