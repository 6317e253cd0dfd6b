// Package hass is the Home Assistant WebSocket API client.
//
// It handles the auth handshake, correlates command responses by message id,
// and fans state_changed events out to per-entity subscribers. One
// subscribe_events subscription covers all entities; filtering happens
// locally, so adding or removing a subscriber never touches the wire.
//
// On connection loss the client reconnects with exponential backoff and
// restores its event subscription. Per-entity subscribers survive a
// reconnect; events fired while disconnected are not replayed.
package hass
