// Package httpclient builds the HTTP clients used against the push service
// and wraps its publish API.
//
// Two transports exist. [NewStreamClient] serves the long-lived event
// streams: no overall timeout, one HTTP/1.1 connection per stream and an idle
// pool sized to the connection count. [NewClient] serves short calls.
//
// [Publisher] covers the service's request/response endpoints:
//
//	pub := httpclient.NewPublisher(cfg.TargetURL, httpclient.NewClient(10*time.Second, false))
//	if err := pub.Health(ctx); err != nil {
//		return err
//	}
//	rtt, err := pub.Send(ctx, "orders", "created", map[string]any{"id": 7})
//
// Non-200 responses come back as *runner.HTTPError so they classify as
// HTTPStatus:<code>.
package httpclient
