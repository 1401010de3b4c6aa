package vocalis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// threadMessage is the wire shape of one history entry.
type threadMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadHistory fetches the committed transcript of a thread, oldest first.
// History turns carry no audio; recordings live only in the session that
// captured them.
func (c *Client) ThreadHistory(ctx context.Context, threadID string) ([]Turn, error) {
	if threadID == "" {
		return nil, NewInvalidRequestError("thread id must not be empty")
	}

	endpoint, err := c.serverEndpoint("/v1/threads/" + url.PathEscape(threadID) + "/messages")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("build history request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp, endpoint)
	}
	defer resp.Body.Close()

	var wire []threadMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, NewProtocolError(fmt.Sprintf("decode history response: %v", err))
	}

	turns := make([]Turn, 0, len(wire))
	for _, m := range wire {
		role := RoleUser
		if m.Role == string(RoleAssistant) {
			role = RoleAssistant
		}
		turns = append(turns, Turn{
			ID:        uuid.NewString(),
			Role:      role,
			Text:      m.Text,
			Timestamp: m.CreatedAt,
		})
	}
	return turns, nil
}

// LoadThreadHistory fetches the session's thread transcript and replaces the
// session messages with it.
func (c *Client) LoadThreadHistory(ctx context.Context, session *Session) ([]Turn, error) {
	if session == nil {
		return nil, NewInvalidRequestError("session must not be nil")
	}
	turns, err := c.ThreadHistory(ctx, session.ThreadID())
	if err != nil {
		return nil, err
	}
	session.ReplaceMessages(turns)
	return turns, nil
}

func decodeErrorResponse(resp *http.Response, endpoint string) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}

	var env struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.Type == "" {
			env.Error.Type = ErrServer
		}
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return env.Error
	}

	msg := "history request failed"
	if resp.StatusCode > 0 {
		msg = fmt.Sprintf("history request failed with status %d", resp.StatusCode)
	}
	return NewServerError(msg, "")
}
