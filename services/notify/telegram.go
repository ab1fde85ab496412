package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the Telegram text cap. Callers truncate with
// Truncate before handing text over; Send enforces it defensively.
const MaxMessageLength = 4096

// Notifier delivers terminal run summaries to the operator channel
type Notifier interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, imagePath, caption string) error
}

// Telegram sends operator notifications through the Bot API.
// TELEGRAM_DATA carries "<bot-token>_<chat-id>".
type Telegram struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegram builds a notifier from the combined credential string.
// An empty credential yields a disabled notifier that only logs.
func NewTelegram(data string) *Telegram {
	t := &Telegram{
		baseURL:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	if data == "" {
		log.Println("TELEGRAM_DATA not set, notifications disabled")
		return t
	}
	parts := strings.SplitN(data, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		log.Println("TELEGRAM_DATA malformed, notifications disabled")
		return t
	}
	t.botToken = parts[0]
	t.chatID = parts[1]
	return t
}

// Enabled reports whether credentials were configured
func (t *Telegram) Enabled() bool {
	return t.botToken != ""
}

// Truncate caps text to the notifier message limit without splitting a
// multibyte rune at the cut
func Truncate(text string) string {
	if len(text) <= MaxMessageLength {
		return text
	}
	cut := MaxMessageLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// SendText delivers a text message to the operator channel
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if !t.Enabled() {
		log.Printf("notify (disabled): %s", firstLine(text))
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    Truncate(text),
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req)
}

// SendPhoto delivers an image with caption, falling back to a text
// report when the upload fails
func (t *Telegram) SendPhoto(ctx context.Context, imagePath, caption string) error {
	if !t.Enabled() {
		log.Printf("notify (disabled): photo %s", imagePath)
		return nil
	}

	if err := t.sendPhoto(ctx, imagePath, caption); err != nil {
		log.Printf("Photo send failed, falling back to text: %v", err)
		return t.SendText(ctx, Truncate(fmt.Sprintf("Failed to send photo\n\n%v", err)))
	}
	return nil
}

func (t *Telegram) sendPhoto(ctx context.Context, imagePath, caption string) error {
	img, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("photo", imagePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, img); err != nil {
		return err
	}
	writer.WriteField("chat_id", t.chatID)
	writer.WriteField("caption", caption)
	if err := writer.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.do(req)
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(data))
	}
	return nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
