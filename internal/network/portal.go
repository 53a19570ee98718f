package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const maxRequestBytes = 4096

// servePortal runs the single-shot configuration listener: one client, one
// request, one response, then it exits. Trying different credentials after a
// failed submission requires re-triggering fallback (a power cycle).
func (a *Acquirer) servePortal(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return fmt.Errorf("portal listen: %w", err)
	}
	defer ln.Close()

	a.log.Infof("Listening on %s", ln.Addr())
	if a.notifyListen != nil {
		a.notifyListen(ln.Addr())
	}

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("portal accept: %w", err)
	}
	defer conn.Close()
	a.log.Infof("Client connected from %s", conn.RemoteAddr())

	return a.handlePortalConn(ctx, conn)
}

func (a *Acquirer) handlePortalConn(ctx context.Context, conn net.Conn) error {
	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("portal read: %w", err)
	}
	request := string(buf[:n])

	joined := false
	if !strings.HasPrefix(request, http.MethodPost+" ") {
		a.log.Error("Portal received a non-POST request; rejecting")
	} else if creds, perr := ParseCredentials(request); perr != nil {
		a.log.Errorf("Rejected credential submission: %v", perr)
	} else {
		a.log.Infof("Received new credentials for network %s", creds.SSID)
		joined = a.join(ctx, creds) == nil
	}

	writePortalResponse(conn, joined)
	return nil
}

func writePortalResponse(conn net.Conn, joined bool) {
	body := "<html><body><h2>Failed to connect to network. Try again.</h2></body></html>"
	if joined {
		body = "<html><body><h2>Connected successfully!</h2></body></html>"
	}
	fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
}
