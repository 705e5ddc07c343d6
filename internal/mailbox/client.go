// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mailbox provides a Gmail-backed message client that lists message
// ids and retrieves full email content using the official API client.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// Client wraps the Gmail API for one mailbox account.
type Client struct {
	svc  *gmail.Service
	user string
}

// NewClient creates a mailbox client for the given account ("me" for the
// authenticated user).
func NewClient(svc *gmail.Service, user string) *Client {
	if user == "" {
		user = "me"
	}
	return &Client{svc: svc, user: user}
}

// NewService builds an authenticated Gmail service from an OAuth client
// credentials file and a stored token file.
func NewService(ctx context.Context, credentialsFile, tokenFile string) (*gmail.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials %s: %w", credentialsFile, err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail token %s: %w", tokenFile, err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return tok, nil
}

// MessageRef identifies one message returned by a list call.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListPage is one page of a message listing.
type ListPage struct {
	Messages           []MessageRef
	NextPageToken      string
	ResultSizeEstimate int64
}

// ListMessages returns one page of message refs matching the query, newest
// first. Callers paginate by passing NextPageToken back in until it comes
// back empty.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*ListPage, error) {
	call := c.svc.Users.Messages.List(c.user).Q(query)
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &ListPage{
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: int64(resp.ResultSizeEstimate),
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

// FetchMessage retrieves one message with its full payload and decodes the
// text and HTML bodies. Returns (nil, nil) when the message no longer exists
// upstream; transport and auth errors propagate to the caller.
func (c *Client) FetchMessage(ctx context.Context, messageID string) (*models.RawMessage, error) {
	msg, err := c.svc.Users.Messages.Get(c.user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			slog.Warn("message not found upstream (may have been deleted)",
				"message_id", messageID,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}

	raw, err := rawMessageFromGmail(msg)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", messageID, err)
	}
	return raw, nil
}
