package robot

import (
	"context"
	"fmt"
	"net/http"
)

// CreateMove issues a motion command and returns the move id to poll.
func (c *Client) CreateMove(ctx context.Context, req *MoveRequest) (int64, error) {
	var resp MoveResponse
	if err := c.post(ctx, "/chassis/moves", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GetMove reads the status of a move.
func (c *Client) GetMove(ctx context.Context, id int64) (*MoveStatus, error) {
	var resp MoveStatus
	if err := c.get(ctx, fmt.Sprintf("/chassis/moves/%d", id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelMove cancels the current move. In-flight pollers observe the
// cancelled state on their next read.
func (c *Client) CancelMove(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/chassis/moves/current", &cancelRequest{State: MoveCancelled}, nil)
}

// JackUp raises the lift.
func (c *Client) JackUp(ctx context.Context) error {
	return c.post(ctx, "/services/jack_up", struct{}{}, nil)
}

// JackDown lowers the lift.
func (c *Client) JackDown(ctx context.Context) error {
	return c.post(ctx, "/services/jack_down", struct{}{}, nil)
}

// DeviceInfo reads the controller's identity; used as a liveness ping.
func (c *Client) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	var info DeviceInfo
	if err := c.get(ctx, "/device/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}
