// Package pagination retrieves list resources page by page with a bearer
// token and merges the pages into one ordered record list.
//
// Pages are fetched strictly in sequence. The page count is derived from the
// first response that reports both a total and a page number, as
// 1 + floor(total/limit). Pagination also stops at the first empty page, so
// an API that omits totals is walked until it runs dry.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig("https://api.example.com"))
//	provider, _ := auth.NewTokenProvider(c, auth.DefaultConfig())
//	tokens := provider.Source(auth.Credentials{Username: "user", Password: "secret"})
//
//	fetcher, _ := pagination.NewFetcher(c, tokens, pagination.DefaultConfig())
//	records, err := fetcher.GetAllPages(ctx, "users", url.Values{"status": {"active"}})
//
// The fetcher:
//   - Authenticates once per GetAllPages call unless a token is preset
//   - Sets the page and limit query parameters under the schema's names
//   - Treats a response without a records list as an empty page
//   - Stops after MaxPages pages as a safety bound
//   - Applies the failure policy when a later page fails
package pagination
