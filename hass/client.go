// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package hass is the WebSocket client for the host platform's API.
//
// The host exposes its device, entity, and config entry registries over a
// WebSocket at /api/websocket. Frames are JSON; after an authentication
// handshake every command carries a monotonically increasing id and the
// host answers with a result frame bearing the same id. Unsolicited
// event frames may be interleaved and are skipped.
//
// Calls are serialized behind a mutex and protected by a circuit breaker,
// so a host that goes away mid-run fails fast instead of hanging every
// trigger. The connection is re-dialed lazily on the next call after a
// failure.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	apperrors "github.com/soothill/frigate-mac-merger/pkg/errors"
	"github.com/soothill/frigate-mac-merger/pkg/logger"
	"github.com/soothill/frigate-mac-merger/pkg/metrics"
	"github.com/soothill/frigate-mac-merger/registry"
)

const (
	defaultCallTimeout = 10 * time.Second
	handshakeTimeout   = 5 * time.Second

	breakerFailureThreshold = 5
	breakerResetTimeout     = 30 * time.Second
)

// Client talks to the host over its WebSocket API and implements
// interfaces.RegistryClient.
type Client struct {
	wsURL       string
	token       string
	callTimeout time.Duration
	breaker     *gobreaker.CircuitBreaker

	mu     sync.Mutex // serializes connection state and in-flight calls
	conn   *websocket.Conn
	nextID int
	dialed bool // a connection has succeeded at least once
}

// NewClient creates a client for the host at baseURL (e.g.
// "http://homeassistant.local:8123") using a long-lived access token.
// No connection is made until the first call.
func NewClient(baseURL, token string, callTimeout time.Duration) (*Client, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	settings := gobreaker.Settings{
		Name:    "homeassistant",
		Timeout: breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Host circuit breaker state change")
		},
	}

	return &Client{
		wsURL:       wsURL,
		token:       token,
		callTimeout: callTimeout,
		breaker:     gobreaker.NewCircuitBreaker(settings),
	}, nil
}

// websocketURL derives the WebSocket endpoint from the host's base URL.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", apperrors.NewConfigError("homeassistant.url", baseURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", apperrors.NewConfigError("homeassistant.url", baseURL,
			fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// connectLocked dials and authenticates. Caller holds c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http status %s)", err, resp.Status)
		}
		return apperrors.NewTransportError("dial", err)
	}

	if err := c.authenticate(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	if c.dialed {
		metrics.HostReconnects.Inc()
	}
	c.dialed = true
	c.conn = conn
	logger.Info().Str("url", c.wsURL).Msg("Connected to host WebSocket API")

	return nil
}

// authenticate performs the auth_required/auth/auth_ok handshake.
func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	deadline := c.deadline(ctx)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	var greeting serverMessage
	if err := conn.ReadJSON(&greeting); err != nil {
		return apperrors.NewTransportError("auth", err)
	}
	if greeting.Type != "auth_required" {
		return apperrors.NewTransportError("auth",
			fmt.Errorf("unexpected greeting %q", greeting.Type))
	}

	if err := conn.WriteJSON(authMessage{Type: "auth", AccessToken: c.token}); err != nil {
		return apperrors.NewTransportError("auth", err)
	}

	var reply serverMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return apperrors.NewTransportError("auth", err)
	}

	switch reply.Type {
	case "auth_ok":
		logger.Debug().Str("ha_version", reply.Version).Msg("Host authentication accepted")
		return nil
	case "auth_invalid":
		return apperrors.NewTransportError("auth", apperrors.ErrAuthFailed)
	default:
		return apperrors.NewTransportError("auth",
			fmt.Errorf("unexpected auth reply %q", reply.Type))
	}
}

// call sends one command and waits for its result frame, skipping any
// interleaved event frames. The payload must carry the assigned id.
func (c *Client) call(ctx context.Context, cmdType string, build func(id int) any) (json.RawMessage, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.dispatch(ctx, cmdType, build)
	})
	if err != nil {
		metrics.HostCommandErrors.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewTransportError(cmdType, apperrors.ErrCircuitBreakerOpen)
		}
		return nil, err
	}
	raw, _ := result.(json.RawMessage)
	return raw, nil
}

func (c *Client) dispatch(ctx context.Context, cmdType string, build func(id int) any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	c.nextID++
	id := c.nextID
	deadline := c.deadline(ctx)
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(build(id)); err != nil {
		c.dropLocked()
		return nil, apperrors.NewTransportError(cmdType, err)
	}

	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.dropLocked()
			return nil, apperrors.NewTransportError(cmdType, err)
		}

		// Subscription events and stale replies are not ours.
		if msg.Type != "result" && msg.Type != "pong" {
			continue
		}
		if msg.ID != id {
			continue
		}

		if msg.Type == "pong" {
			return nil, nil
		}
		if msg.Success != nil && !*msg.Success {
			reason := "unknown"
			if msg.Error != nil {
				reason = fmt.Sprintf("%s: %s", msg.Error.Code, msg.Error.Message)
			}
			return nil, apperrors.NewTransportError(cmdType,
				fmt.Errorf("%w: %s", apperrors.ErrCommandFailed, reason))
		}
		return msg.Result, nil
	}
}

// dropLocked discards a broken connection so the next call re-dials.
// Caller holds c.mu.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// listCall runs a parameterless command and decodes its result list.
func listCall[T any](c *Client, ctx context.Context, cmdType string) ([]T, error) {
	raw, err := c.call(ctx, cmdType, func(id int) any {
		return command{ID: id, Type: cmdType}
	})
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperrors.NewTransportError(cmdType, fmt.Errorf("decode result: %w", err))
	}
	return items, nil
}

// ListDevices returns every device registry entry.
func (c *Client) ListDevices(ctx context.Context) ([]registry.DeviceRecord, error) {
	wire, err := listCall[wireDevice](c, ctx, cmdDeviceRegistryList)
	if err != nil {
		return nil, err
	}
	records := make([]registry.DeviceRecord, 0, len(wire))
	for i := range wire {
		records = append(records, wire[i].toRecord())
	}
	return records, nil
}

// ListEntities returns every entity registry entry.
func (c *Client) ListEntities(ctx context.Context) ([]registry.EntityRecord, error) {
	wire, err := listCall[wireEntity](c, ctx, cmdEntityRegistryList)
	if err != nil {
		return nil, err
	}
	records := make([]registry.EntityRecord, 0, len(wire))
	for i := range wire {
		records = append(records, wire[i].toRecord())
	}
	return records, nil
}

// ListConfigEntries returns every config entry.
func (c *Client) ListConfigEntries(ctx context.Context) ([]registry.ConfigEntryRecord, error) {
	wire, err := listCall[wireConfigEntry](c, ctx, cmdConfigEntriesGet)
	if err != nil {
		return nil, err
	}
	records := make([]registry.ConfigEntryRecord, 0, len(wire))
	for i := range wire {
		records = append(records, wire[i].toRecord())
	}
	return records, nil
}

// ListStates returns the current state of every entity.
func (c *Client) ListStates(ctx context.Context) ([]registry.StateRecord, error) {
	wire, err := listCall[wireState](c, ctx, cmdGetStates)
	if err != nil {
		return nil, err
	}
	records := make([]registry.StateRecord, 0, len(wire))
	for i := range wire {
		records = append(records, wire[i].toRecord())
	}
	return records, nil
}

// Snapshot fetches all four registries in one pass.
func (c *Client) Snapshot(ctx context.Context) (*registry.Snapshot, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := c.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := c.ListConfigEntries(ctx)
	if err != nil {
		return nil, err
	}
	states, err := c.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	return &registry.Snapshot{
		Devices:       devices,
		Entities:      entities,
		ConfigEntries: entries,
		States:        states,
	}, nil
}

// UpdateDevice applies an additive update to a device registry entry.
// The host merges the new tuples into the device's existing sets and
// de-duplicates, so repeating an update is harmless.
func (c *Client) UpdateDevice(ctx context.Context, deviceID string, update registry.DeviceUpdate) error {
	if deviceID == "" {
		return apperrors.NewRegistryError("update", deviceID, fmt.Errorf("device ID cannot be empty"))
	}
	if len(update.AddConnections) == 0 && len(update.AddIdentifiers) == 0 {
		return nil
	}

	_, err := c.call(ctx, cmdDeviceRegistryUpdate, func(id int) any {
		return updateCommand{
			ID:          id,
			Type:        cmdDeviceRegistryUpdate,
			DeviceID:    deviceID,
			Identifiers: identifierTuples(update.AddIdentifiers),
			Connections: connectionTuples(update.AddConnections),
		}
	})
	if err != nil {
		return apperrors.NewRegistryError("update", deviceID, err)
	}
	return nil
}

// Health checks that the host API is reachable and authenticated.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.call(ctx, cmdPing, func(id int) any {
		return command{ID: id, Type: cmdPing}
	})
	return err
}

// Close shuts down the connection to the host.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		logger.Info().Msg("Closing host WebSocket connection")
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.dropLocked()
	}
}
