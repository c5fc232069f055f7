package protocol

import (
	"fmt"

	"github.com/lcx/mcgate/codec"
)

// handleHandshake reads the whole handshake before judging it, so a
// rejected client has still been fully parsed for the log.
func (c *Client) handleHandshake(buf *codec.Buffer) error {
	version, err := buf.ReadVarInt()
	if err != nil {
		return fmt.Errorf("%w: protocol version: %w", ErrMalformedFrame, err)
	}
	host, err := buf.ReadString()
	if err != nil {
		return fmt.Errorf("%w: server address: %w", ErrMalformedFrame, err)
	}
	port, err := buf.ReadUint16()
	if err != nil {
		return fmt.Errorf("%w: server port: %w", ErrMalformedFrame, err)
	}
	nextState, err := buf.ReadVarInt()
	if err != nil {
		return fmt.Errorf("%w: next state: %w", ErrMalformedFrame, err)
	}

	c.logger.Debug().
		Int64("version", int64(version)).
		Str("host", host).
		Uint32("port", uint32(port)).
		Int64("next", int64(nextState)).
		Msg("handshake")

	if version != Version {
		return fmt.Errorf("%w: client %d, server %d", ErrProtocolVersionMismatch, version, Version)
	}

	switch nextState {
	case 1:
		c.setState(StateStatus)
	case 2:
		c.setState(StateLogin)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidState, nextState)
	}
	return nil
}

func (c *Client) handleStatusRequest(_ *codec.Buffer) error {
	reply := codec.NewBuffer()
	reply.WriteVarUint(uint32(opStatusResponse))
	reply.WriteString(c.settings.statusJSON)

	c.sender.Send(reply.Bytes(), false)
	return nil
}

// handleStatusPing echoes the payload. The reply skips batching because the
// client measures the round trip.
func (c *Client) handleStatusPing(buf *codec.Buffer) error {
	payload, err := buf.ReadUint64()
	if err != nil {
		return fmt.Errorf("%w: ping payload: %w", ErrMalformedFrame, err)
	}

	reply := codec.NewBuffer()
	reply.WriteVarUint(uint32(opStatusPong))
	reply.WriteUint64(payload)

	c.sender.Send(reply.Bytes(), true)
	return nil
}

// handleLoginStart accepts any username. The state stays login: nothing
// promotes a logged in client to play yet.
func (c *Client) handleLoginStart(buf *codec.Buffer) error {
	username, err := buf.ReadString()
	if err != nil {
		return fmt.Errorf("%w: username: %w", ErrMalformedFrame, err)
	}

	success := codec.NewBuffer()
	success.WriteVarUint(uint32(opLoginSuccess))
	success.WriteString(c.settings.loginUUID)
	success.WriteString(username)

	c.sender.Send(success.Bytes(), false)
	c.sender.Send(c.settings.joinGame, false)

	c.logger.Info().Str("username", username).Str("uuid", c.settings.loginUUID).Msg("login")
	return nil
}
