package lnbits

import (
	"github.com/imroc/req"
)

// NewClient returns a new lnbits api client. Pass your API key and url here.
// The key goes into the X-Api-Key header of every request; for the withdraw
// extension this is the wallet admin key.
func NewClient(key, url string) *Client {
	return &Client{
		url: url,
		header: req.Header{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"X-Api-Key":    key,
		},
	}
}

// CreateWithdrawLink mints a withdraw link in the lnbits withdraw extension.
// With Uses=1 and MinWithdrawable==MaxWithdrawable the link is a single-use,
// exact-amount claim.
func (c *Client) CreateWithdrawLink(params WithdrawLinkParams) (link WithdrawLink, err error) {
	resp, err := req.Post(c.url+"/withdraw/api/v1/links", c.header, req.BodyJSON(&params))
	if err != nil {
		return
	}

	if resp.Response().StatusCode >= 300 {
		var reqErr Error
		resp.ToJSON(&reqErr)
		err = reqErr
		return
	}

	err = resp.ToJSON(&link)
	return
}

// GetWithdrawLink returns the current state of a withdraw link, including
// its used/uses counters.
func (c *Client) GetWithdrawLink(id string) (link WithdrawLink, err error) {
	resp, err := req.Get(c.url+"/withdraw/api/v1/links/"+id, c.header, nil)
	if err != nil {
		return
	}

	if resp.Response().StatusCode >= 300 {
		var reqErr Error
		resp.ToJSON(&reqErr)
		err = reqErr
		return
	}

	err = resp.ToJSON(&link)
	return
}

// WithdrawURL returns the public redemption page for a link id.
func (c *Client) WithdrawURL(id string) string {
	return c.url + "/withdraw/" + id
}
