// Package gmail provides a client for the parts of the Gmail API the
// attachment pipeline needs.
//
// This package offers:
//   - Listing message IDs that match a Gmail search query
//   - Translating an optional date range into Gmail's after:/before: syntax
//   - Fetching full messages and walking their MIME parts
//   - Downloading and decoding attachment payloads
//
// The client is constructed from an authenticated *http.Client, so every
// request (HTTP session or CLI run) brings its own OAuth credentials. There is
// no process-wide Gmail client.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, httpClient)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids, err := client.ListMessageIDs(ctx, gmail.BuildQuery(dateRange), 10)
//	for _, id := range ids {
//	    parts, err := client.ListAttachments(ctx, id)
//	    ...
//	}
package gmail
