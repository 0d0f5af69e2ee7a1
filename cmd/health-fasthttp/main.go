package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Lean standalone liveness endpoint for deployment systems that cannot
// reach the daemon's admin surface directly. Each probe checks the
// daemon's /healthz and relays the result, so this process reports the
// daemon's health rather than its own.
func main() {
	addr := flag.String("addr", ":8778", "listen address for the health endpoint")
	daemon := flag.String("daemon", "http://127.0.0.1:8777", "base URL of the relayq daemon")
	probeTimeout := flag.Duration("timeout", 2*time.Second, "daemon probe timeout")
	flag.Parse()

	client := &fasthttp.Client{
		Name:                "relayq-health",
		MaxIdleConnDuration: 30 * time.Second,
	}
	target := *daemon + "/healthz"

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			status, body, err := client.GetTimeout(nil, target, *probeTimeout)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(`{"status":"daemon_unreachable"}`)
				return
			}
			if status != fasthttp.StatusOK {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(fmt.Sprintf(`{"status":"daemon_unhealthy","daemon_status":%d}`, status))
				return
			}
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.Write(body)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("health endpoint listening on %s, probing %s\n", *addr, target)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "relayq-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health endpoint exit: %v\n", err)
	}
}
