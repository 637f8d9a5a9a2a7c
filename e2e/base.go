package e2e

import (
	"encoding/json"
	"fmt"
	"hobby-relay/auth"
	"net/url"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("E2E_RELAY_URL not set")
	}
}

// Connect opens a WebSocket as name, joining room at handshake when not empty.
func (s *BaseRelaySuite) Connect(step, name, room string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", step)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	query := url.Values{}
	if s.Config.TokenSecret != "" {
		token, err := auth.NewVerifier(s.Config.TokenSecret).GenerateToken(name, room, time.Minute)
		s.Require().NoError(err)
		query.Set("token", token)
	} else {
		query.Set("name", name)
		if room != "" {
			query.Set("room", room)
		}
	}

	address := strings.Replace(s.Config.RelayURL, "http", "ws", 1) + "/ws?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(address, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+address)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseRelaySuite) Send(conn *websocket.Conn, event string, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(Frame{Event: event, Data: raw}))
}

// Expect reads the next frame, checks its event name and decodes its data into out.
func (s *BaseRelaySuite) Expect(conn *websocket.Conn, event string, out any) {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var frame Frame
	s.Require().NoError(conn.ReadJSON(&frame))
	if s.Config.DebugJSON {
		s.T().Logf("%s %s", frame.Event, string(frame.Data))
	}
	s.Require().Equal(event, frame.Event, string(frame.Data))
	if out != nil {
		s.Require().NoError(json.Unmarshal(frame.Data, out))
	}
}
