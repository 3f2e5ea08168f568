// Package httpclient is the JSON-over-HTTP client behind the polling
// topology transport.
//
// Every failure is an *Error. Timeouts and connection failures mean the
// peer never answered (Reachable is false); any other code means it
// answered with something unusable.
//
//	c, err := httpclient.New(httpclient.Config{BaseURL: "http://127.0.0.1:50055"})
//	var out registerResponse
//	err = c.JSON(ctx, http.MethodPost, "/register", req, &out)
package httpclient
