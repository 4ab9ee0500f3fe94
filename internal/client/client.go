package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"circles-service/internal/models"
	"circles-service/internal/security"
	"circles-service/internal/session"
	"circles-service/internal/storage"
)

// Client talks to a running Circles service over HTTP. It implements
// session.Backend, session.Uploader and session.Identity.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a client for the given service root and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// MessagesPage fetches one keyset page of group history.
func (c *Client) MessagesPage(ctx context.Context, groupID, cursor string, limit int) (session.Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	var resp struct {
		Messages   []models.Message `json:"messages"`
		HasMore    bool             `json:"has_more"`
		NextCursor string           `json:"next_cursor"`
	}
	if err := c.get(ctx, "/groups/"+groupID+"/messages", q, &resp); err != nil {
		return session.Page{}, err
	}
	return session.Page{Messages: resp.Messages, HasMore: resp.HasMore, NextCursor: resp.NextCursor}, nil
}

// SendMessage posts a message to a group.
func (c *Client) SendMessage(ctx context.Context, groupID, content string, replyToID *string, attachments []models.Attachment) error {
	body := struct {
		Content     string              `json:"content"`
		ReplyToID   *string             `json:"reply_to_id,omitempty"`
		Attachments []models.Attachment `json:"attachments,omitempty"`
	}{Content: content, ReplyToID: replyToID, Attachments: attachments}
	return c.post(ctx, "/groups/"+groupID+"/messages", body, nil)
}

// ToggleReaction flips the caller's reaction on a message.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	body := struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	}{MessageID: messageID, Emoji: emoji}
	return c.post(ctx, "/rpc/toggle-reaction", body, nil)
}

// AdvanceReadCursor marks everything up to a message as read.
func (c *Client) AdvanceReadCursor(ctx context.Context, groupID, messageID string) error {
	body := struct {
		GroupID   string `json:"group_id"`
		MessageID string `json:"message_id"`
	}{GroupID: groupID, MessageID: messageID}
	return c.post(ctx, "/rpc/advance-read-cursor", body, nil)
}

// Members fetches a group's membership list.
func (c *Client) Members(ctx context.Context, groupID string) ([]models.Member, error) {
	var resp struct {
		Members []models.Member `json:"members"`
	}
	if err := c.get(ctx, "/groups/"+groupID+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// Profiles bulk-fetches profiles by user id.
func (c *Client) Profiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	q := url.Values{"ids": userIDs}
	var resp struct {
		Profiles []models.Profile `json:"profiles"`
	}
	if err := c.get(ctx, "/profiles", q, &resp); err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// ReactionsFor bulk-fetches reactions for a batch of messages.
func (c *Client) ReactionsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error) {
	q := url.Values{"message_ids": messageIDs}
	var resp struct {
		Reactions []models.Reaction `json:"reactions"`
	}
	if err := c.get(ctx, "/groups/"+groupID+"/reactions", q, &resp); err != nil {
		return nil, err
	}
	return resp.Reactions, nil
}

// ReadsFor bulk-fetches read receipts for a batch of messages.
func (c *Client) ReadsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error) {
	q := url.Values{"message_ids": messageIDs}
	var resp struct {
		Reads []models.ReadReceipt `json:"reads"`
	}
	if err := c.get(ctx, "/groups/"+groupID+"/reads", q, &resp); err != nil {
		return nil, err
	}
	return resp.Reads, nil
}

// Upload stores an attachment in the chat-uploads bucket and returns a
// descriptor with a signed URL.
func (c *Client) Upload(ctx context.Context, groupID string, upload session.Upload) (models.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("group_id", groupID); err != nil {
		return models.Attachment{}, err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.Name))
	if upload.ContentType != "" {
		header.Set("Content-Type", upload.ContentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return models.Attachment{}, err
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return models.Attachment{}, fmt.Errorf("read upload %s: %w", upload.Name, err)
	}
	if err := mw.Close(); err != nil {
		return models.Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/storage/"+storage.BucketChatUploads+"/upload", &buf)
	if err != nil {
		return models.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var attachment models.Attachment
	if err := c.do(req, &attachment); err != nil {
		return models.Attachment{}, err
	}

	var signed struct {
		URL string `json:"url"`
	}
	err = c.post(ctx, "/storage/"+storage.BucketChatUploads+"/sign",
		struct {
			Path string `json:"path"`
		}{Path: attachment.Path}, &signed)
	if err != nil {
		return models.Attachment{}, err
	}
	attachment.URL = signed.URL
	return attachment, nil
}

// CurrentUser reads the caller's identity out of the bearer token. The token
// was issued to this client, so its claims are trusted without verification.
func (c *Client) CurrentUser(ctx context.Context) (session.UserInfo, error) {
	claims, err := security.ParseUnverified(c.token)
	if err != nil {
		return session.UserInfo{}, fmt.Errorf("parse token: %w", err)
	}
	return session.UserInfo{UserID: claims.Subject, Email: claims.Email}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
