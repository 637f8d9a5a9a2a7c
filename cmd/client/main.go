// Command client is a terminal client for the relay, used for manual testing.
//
//	/join <room>       join or move to a room
//	/history           print the room history as a table
//	/search <terms>    full text search in the room, eg. /search gambit --lang en
//	/quit
//
// Any other line is sent as a chat message.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"hobby-relay/projection"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Lang      string    `json:"lang"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

type failure struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

var palette = []color.Color{color.FgCyan, color.FgGreen, color.FgMagenta, color.FgYellow, color.FgBlue, color.FgLightRed}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(config), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	c := newClient(config, conn)
	go c.readLoop()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, argument, _ := strings.Cut(line, " ")
		switch command {
		case "/quit":
			return conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		case "/join":
			err = c.send("joinRoom", c.requestJoin(argument))
		case "/history":
			err = c.printTable(fmt.Sprintf("/api/messages/%s", url.PathEscape(c.currentRoom())))
		case "/search":
			err = c.printTable(fmt.Sprintf("/api/rooms/%s/search?q=%s", url.PathEscape(c.currentRoom()), url.QueryEscape(argument)))
		default:
			err = c.send("chatMessage", map[string]string{"room": c.currentRoom(), "text": line})
		}
		if err != nil {
			color.Error.Println(err)
		}
	}
	return scanner.Err()
}

type client struct {
	config   Config
	conn     *websocket.Conn
	timeline *projection.Timeline

	mu      sync.Mutex
	room    string
	pending string
}

func newClient(config Config, conn *websocket.Conn) *client {
	return &client{config: config, conn: conn, pending: config.Room, timeline: projection.NewTimeline()}
}

// requestJoin remembers the requested room. The current room only changes
// once the relay replays its history.
func (c *client) requestJoin(room string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = strings.TrimSpace(room)
	return c.pending
}

// joined switches to the replayed room, taken from the messages when there are some.
func (c *client) joined(messages []message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.pending
	if len(messages) > 0 {
		room = messages[0].Room
	}
	c.room, c.pending = room, ""
	return room
}

// rejected drops a pending join refused by the relay.
func (c *client) rejected(reason string) {
	if reason != "banned_topic" && reason != "invalid_payload" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = ""
}

func (c *client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func wsURL(config Config) string {
	base := strings.Replace(config.RelayURL, "http", "ws", 1)
	query := url.Values{}
	if config.Token != "" {
		query.Set("token", config.Token)
	} else {
		query.Set("name", config.Name)
		if config.Room != "" {
			query.Set("room", config.Room)
		}
	}
	return base + "/ws?" + query.Encode()
}

func (c *client) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(envelope{Event: event, Data: raw})
}

func (c *client) readLoop() {
	for {
		var evt envelope
		if err := c.conn.ReadJSON(&evt); err != nil {
			color.Warn.Println("connection closed:", err)
			os.Exit(0)
		}
		switch evt.Event {
		case "previousMessages":
			var messages []message
			if err := json.Unmarshal(evt.Data, &messages); err == nil {
				replayed := event.HistoryReplayed{Room: domain.NewRoomID(c.joined(messages)), Messages: toDomain(messages)}
				color.Info.Printf("-- %d previous messages --\n", len(messages))
				c.print(c.timeline.Consume(replayed))
			}
		case "message":
			var m message
			if err := json.Unmarshal(evt.Data, &m); err == nil {
				c.print(c.timeline.Consume(event.MessagePosted{Message: toDomain([]message{m})[0]}))
			}
		case "error":
			var f failure
			if err := json.Unmarshal(evt.Data, &f); err == nil {
				c.rejected(f.Reason)
				color.Error.Printf("[%s] %s\n", f.Reason, f.Message)
			}
		}
	}
}

func (c *client) print(messages []domain.Message) {
	for _, m := range messages {
		sender := m.Sender
		if c.config.Colours {
			sender = senderColour(m.Sender).Render(m.Sender)
		}
		fmt.Printf("%s %s: %s\n", m.At.Local().Format("15:04:05"), sender, m.Text)
	}
}

// toDomain maps wire messages. An unparsable id gets a fresh one so the
// message is still shown.
func toDomain(messages []message) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			id = uuid.New()
		}
		out = append(out, domain.Message{
			ID:     id,
			Room:   domain.NewRoomID(m.Room),
			Sender: m.Sender,
			Text:   m.Text,
			At:     m.Timestamp,
		})
	}
	return out
}

// senderColour keeps the same colour for a sender across sessions.
func senderColour(sender string) color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return palette[h.Sum32()%uint32(len(palette))]
}

func (c *client) printTable(path string) error {
	resp, err := http.Get(strings.TrimRight(c.config.RelayURL, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var f failure
		_ = json.NewDecoder(resp.Body).Decode(&f)
		return fmt.Errorf("%s: [%s] %s", resp.Status, f.Reason, f.Message)
	}

	var messages []message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Text", "Lang", "Score"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, m := range messages {
		score := ""
		if m.Score > 0 {
			score = fmt.Sprintf("%.2f", m.Score)
		}
		table.Append([]string{m.Timestamp.Local().Format("2006-01-02 15:04:05"), m.Sender, m.Text, m.Lang, score})
	}
	table.Render()
	return nil
}
