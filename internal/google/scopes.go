package google

// DefaultOAuthScopes are the scopes requested for every account.
//
// The pipeline reads mail and attachments, and creates files and folders in
// Drive. The OpenID scopes identify the mailbox so deduplication can be
// scoped to it.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	"https://www.googleapis.com/auth/gmail.readonly",

	"https://www.googleapis.com/auth/drive",
}
