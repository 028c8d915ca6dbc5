package rpc

import (
	"encoding/json"
	"fmt"
	"net/rpc"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
)

// Client calls a remote StateService.
type Client struct {
	client *rpc.Client
	name   string
}

// Dial connects to addr. name identifies the caller in server logs.
func Dial(addr, name string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{client: c, name: name}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// RejectedError is returned when the server declined an operation.
type RejectedError struct {
	Result string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Result, e.Reason)
}

func (c *Client) call(method string, args, reply any, r *Reply) error {
	if err := c.client.Call(ServiceName+"."+method, args, reply); err != nil {
		return err
	}
	if !r.OK {
		return &RejectedError{Result: r.Result, Reason: r.Reason}
	}
	return nil
}

func (c *Client) ListFeatures() (map[string]feature.State, error) {
	var reply ListFeaturesReply
	if err := c.call("ListFeatures", c.request(), &reply, &reply.Reply); err != nil {
		return nil, err
	}
	return reply.Features, nil
}

func (c *Client) GetFeature(name string) (feature.State, error) {
	var reply FeatureReply
	err := c.call("GetFeature", &FeatureArgs{Name: name}, &reply, &reply.Reply)
	return reply.State, err
}

func (c *Client) ChangeFeature(name string, st feature.State) (feature.State, error) {
	var reply FeatureReply
	err := c.call("ChangeFeature", &ChangeFeatureArgs{Name: name, State: st}, &reply, &reply.Reply)
	return reply.State, err
}

func (c *Client) ResetFeatures() error {
	var reply Reply
	return c.call("ResetFeatures", c.request(), &reply, &reply)
}

func (c *Client) CurrentGame() (game.Game, error) {
	return c.gameCall("CurrentGame", c.request())
}

// StartGame starts name with settings, a JSON object (nil for none).
func (c *Client) StartGame(name string, settings []byte) (game.Game, error) {
	return c.gameCall("StartGame", &GameArgs{Name: name, Settings: settings})
}

func (c *Client) UpdateGame(name string, settings []byte) (game.Game, error) {
	return c.gameCall("UpdateGame", &GameArgs{Name: name, Settings: settings})
}

func (c *Client) StopGame() (game.Game, error) {
	return c.gameCall("StopGame", c.request())
}

func (c *Client) gameCall(method string, args any) (game.Game, error) {
	var reply GameReply
	if err := c.call(method, args, &reply, &reply.Reply); err != nil {
		return game.Game{}, err
	}
	var g game.Game
	if err := json.Unmarshal(reply.Game, &g); err != nil {
		return game.Game{}, err
	}
	return g, nil
}

func (c *Client) request() *Request {
	return &Request{Client: c.name}
}
