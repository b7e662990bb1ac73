package gmail

import (
	"context"
	"fmt"
	"net/http"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	// me addresses the authenticated user in every Gmail API call
	me = "me"

	// maxPageSize is the largest page the Gmail API returns for messages.list
	maxPageSize = 500
)

// Client wraps the Gmail Users service for one authenticated mailbox
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client that sends requests through httpClient.
// Extra options (e.g. option.WithEndpoint) are passed to the service constructor.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("an authenticated HTTP client is required")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{svc: svc.Users}, nil
}

// EmailAddress returns the address of the authenticated mailbox
func (c *Client) EmailAddress(ctx context.Context) (string, error) {
	profile, err := c.svc.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// ListMessageIDs lists the IDs of messages matching the query.
// It will fetch up to maxResults IDs, making multiple API calls if necessary.
func (c *Client) ListMessageIDs(ctx context.Context, q string, maxResults int64) ([]string, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	var ids []string
	pageToken := ""

	for {
		remaining := maxResults - int64(len(ids))
		if remaining <= 0 {
			break
		}

		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		req := c.svc.Messages.List(me).Context(ctx).Q(q).MaxResults(pageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}

	return ids, nil
}

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get(me, messageID).Context(ctx).Format("full").Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}
