package main

import (
	"bufio"
	"bytes"
	"chat-dm/domain"
	"chat-dm/domain/event"
	ws "chat-dm/infrastructure/websocket"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"http://localhost:5000"`
	// CHAT_TOKEN skips the login step when set
	Token    string `envconfig:"CHAT_TOKEN"`
	Email    string `envconfig:"CHAT_EMAIL"`
	Password string `envconfig:"CHAT_PASSWORD"`
	// CHAT_COLOURS enables colorized output
	Colours bool `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run logs in, opens the websocket and relays stdin lines as messages.
// A line "<receiverId>: <content>" sends a message, "/typing <receiverId>" a typing signal.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := config.Token
	if token == "" {
		if config.Email == "" || config.Password == "" {
			return exitConfig, fmt.Errorf("CHAT_TOKEN or CHAT_EMAIL and CHAT_PASSWORD are required")
		}
		var err error
		if token, err = login(ctx, config); err != nil {
			return exitRuntime, err
		}
	}

	wsURL, err := websocketURL(config.ServerURL)
	if err != nil {
		return exitConfig, err
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return exitRuntime, fmt.Errorf("handshake refused with status %d: %w", resp.StatusCode, err)
		}
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", wsURL, err)
	}
	defer conn.Close()
	color.Green.Println("Connected to", wsURL)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	go readInput(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				color.Yellow.Println("Connection closed")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		}
		printEnvelope(data)
	}
}

func readInput(conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, ok := parseLine(scanner.Text())
		if !ok {
			color.Gray.Println("usage: <receiverId>: <content> | /typing <receiverId>")
			continue
		}
		frame, err := ws.EncodeCommand(cmd)
		if err != nil {
			color.Red.Println("encode failed:", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			color.Red.Println("send failed:", err)
			return
		}
	}
}

func parseLine(line string) (domain.Command, bool) {
	line = strings.TrimSpace(line)
	if receiver, ok := strings.CutPrefix(line, "/typing "); ok {
		return domain.TypingCommand{Receiver: strings.TrimSpace(receiver), IsTyping: true}, true
	}
	receiver, content, ok := strings.Cut(line, ":")
	if !ok || strings.TrimSpace(receiver) == "" {
		return nil, false
	}
	return domain.SendMessageCommand{Receiver: strings.TrimSpace(receiver), Content: strings.TrimSpace(content)}, true
}

func printEnvelope(data []byte) {
	var envelope event.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		color.Red.Println("unreadable frame:", string(data))
		return
	}

	switch envelope.Event {
	case event.ReceiveMessageName, event.MessageSentName:
		var view domain.MessageView
		if err := json.Unmarshal(envelope.Data, &view); err != nil {
			break
		}
		style := color.Cyan
		if envelope.Event == event.MessageSentName {
			style = color.Gray
		}
		style.Printf("[%s] %s -> %s: %s\n", view.CreatedAt.Local().Format("15:04:05"),
			view.Sender.Username, view.Receiver.Username, view.Content)
		return
	case event.UserOnlineName:
		color.Green.Println("online:", string(envelope.Data))
		return
	case event.UserOfflineName:
		color.Yellow.Println("offline:", string(envelope.Data))
		return
	case event.ErrorName:
		color.Red.Println("error:", string(envelope.Data))
		return
	}
	color.Gray.Printf("%s %s\n", envelope.Event, string(envelope.Data))
}

func login(ctx context.Context, config Config) (string, error) {
	body, err := json.Marshal(map[string]string{"email": config.Email, "password": config.Password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(config.ServerURL, "/")+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var account struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return "", fmt.Errorf("login response unreadable: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login refused (%d): %s", resp.StatusCode, account.Message)
	}
	return account.Token, nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid CHAT_SERVER_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
