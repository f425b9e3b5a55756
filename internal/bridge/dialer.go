// Package bridge implements world.Dialer over the voxel world server's
// websocket protocol.
package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdel0909/mc-bot/internal/protocol"
	"github.com/abdel0909/mc-bot/internal/world"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	eventBuffer      = 256
)

var (
	_ world.Dialer = (*Dialer)(nil)
	_ world.Conn   = (*Conn)(nil)
)

type DialerConfig struct {
	// StateFile keeps resume tokens across restarts; empty disables it.
	StateFile string
	// Scaffold lists name fragments of inventory items the pathfinder
	// may place while navigating.
	Scaffold []string
	Log      *log.Logger
}

type Dialer struct {
	cfg   DialerConfig
	state *stateFile
	ws    websocket.Dialer
}

func NewDialer(cfg DialerConfig) *Dialer {
	if cfg.Log == nil {
		cfg.Log = log.New(log.Writer(), "[bridge] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Dialer{
		cfg:   cfg,
		state: &stateFile{path: cfg.StateFile},
		ws:    websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// URL is the websocket endpoint for opts.
func URL(opts world.Options) string {
	path := opts.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)), Path: path}
	return u.String()
}

// Dial connects and sends HELLO. The returned Conn reports spawn once the
// first observation after WELCOME arrives.
func (d *Dialer) Dial(ctx context.Context, opts world.Options) (world.Conn, error) {
	if opts.Version != "" && !protocol.IsSupportedVersion(opts.Version) {
		return nil, fmt.Errorf("%w: %q", errUnsupportedVersion, opts.Version)
	}
	prev, err := d.state.get(opts.Username)
	if err != nil {
		d.cfg.Log.Printf("state file unreadable, starting fresh: %v", err)
	}

	ws, resp, err := d.ws.DialContext(ctx, URL(opts), http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", URL(opts), err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       opts.Username,
		Capabilities: protocol.HelloCapabilities{
			DeltaVoxels: true,
			MaxQueue:    64,
		},
		Auth: &protocol.HelloAuth{
			Mode:        string(opts.Auth),
			Token:       opts.AuthToken,
			ResumeToken: strings.TrimSpace(prev.ResumeToken),
		},
	}
	if hello.Auth.Mode == "" {
		hello.Auth.Mode = protocol.AuthOffline
	}
	if opts.Version != "" {
		hello.ProtocolVersion = opts.Version
	} else {
		hello.SupportedVersions = protocol.SupportedVersions
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(hello); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	c := newConn(ws, connConfig{
		username: opts.Username,
		pinned:   opts.Version,
		scaffold: d.cfg.Scaffold,
		log:      d.cfg.Log,
		onWelcome: func(w protocol.WelcomeMsg) {
			s := persistedSession{ResumeToken: w.ResumeToken, AgentID: w.AgentID, Version: w.Negotiated()}
			if err := d.state.put(opts.Username, s, time.Now()); err != nil {
				d.cfg.Log.Printf("persist session: %v", err)
			}
		},
		onKick: func(code string) {
			if code != protocol.ErrAuthFailed {
				return
			}
			if err := d.state.forget(opts.Username); err != nil {
				d.cfg.Log.Printf("forget session: %v", err)
			}
		},
	})
	go c.readLoop()
	return c, nil
}
