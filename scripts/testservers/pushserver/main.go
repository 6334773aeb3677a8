// Command pushserver runs the in-memory push service used by the package
// tests so sseflood can be tried locally without a real deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/sseflood/internal/testserver"
)

func main() {
	port := flag.Int("port", 8080, "Listening port")
	heartbeat := flag.Duration("heartbeat", 15*time.Second, "Comment line interval on idle streams (0 disables it)")
	closeAfter := flag.Duration("close-after", 0, "End every stream after this long (0 keeps streams open)")
	connectDelay := flag.Duration("connect-delay", 0, "Delay before stream response headers")
	connectStatus := flag.Int("connect-status", 0, "Answer /sse/connect with this status instead of a stream")
	greeting := flag.Bool("greeting", false, "Send one data event when a stream opens")
	unhealthy := flag.Bool("unhealthy", false, "Answer /health with 503")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	var opts []testserver.Option
	if *heartbeat > 0 {
		opts = append(opts, testserver.WithHeartbeat(*heartbeat))
	}
	if *closeAfter > 0 {
		opts = append(opts, testserver.WithCloseAfter(*closeAfter))
	}
	if *connectDelay > 0 {
		opts = append(opts, testserver.WithConnectDelay(*connectDelay))
	}
	if *connectStatus > 0 {
		opts = append(opts, testserver.WithConnectStatus(*connectStatus))
	}
	if *greeting {
		opts = append(opts, testserver.WithGreeting())
	}
	if *unhealthy {
		opts = append(opts, testserver.WithUnhealthy())
	}

	svc := testserver.New(opts...)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           svc,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		svc.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("push server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
