package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Magpie.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Magpie.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Magpie.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Parse resolves a URL to its platform.
func (c *Client) Parse(url string) (*ParseResponse, error) {
	var resp ParseResponse
	if err := c.client.Call("Magpie.Parse", ParseRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Platforms lists registered platforms.
func (c *Client) Platforms() (*PlatformsResponse, error) {
	var resp PlatformsResponse
	if err := c.client.Call("Magpie.Platforms", PlatformsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryList returns ledger entries.
func (c *Client) HistoryList() (*HistoryListResponse, error) {
	var resp HistoryListResponse
	if err := c.client.Call("Magpie.HistoryList", HistoryListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryRemove deletes one ledger entry and its artifacts.
func (c *Client) HistoryRemove(folder string) (*HistoryRemoveResponse, error) {
	var resp HistoryRemoveResponse
	if err := c.client.Call("Magpie.HistoryRemove", HistoryRemoveRequest{Folder: folder}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CredentialSet stores a credential for a platform.
func (c *Client) CredentialSet(platformID, token, validity string) (*CredentialSetResponse, error) {
	var resp CredentialSetResponse
	req := CredentialSetRequest{Platform: platformID, Token: token, Validity: validity}
	if err := c.client.Call("Magpie.CredentialSet", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CredentialRemove deletes a stored credential.
func (c *Client) CredentialRemove(platformID string) (*CredentialRemoveResponse, error) {
	var resp CredentialRemoveResponse
	if err := c.client.Call("Magpie.CredentialRemove", CredentialRemoveRequest{Platform: platformID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CredentialList lists stored credentials.
func (c *Client) CredentialList() (*CredentialListResponse, error) {
	var resp CredentialListResponse
	if err := c.client.Call("Magpie.CredentialList", CredentialListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
