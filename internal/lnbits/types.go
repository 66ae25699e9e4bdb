package lnbits

import (
	"github.com/imroc/req"
)

type Client struct {
	header req.Header
	url    string
}

type WithdrawLinkParams struct {
	Title           string `json:"title"`
	MinWithdrawable int64  `json:"min_withdrawable"` // amount in satoshi
	MaxWithdrawable int64  `json:"max_withdrawable"` // amount in satoshi
	Uses            int    `json:"uses"`
	WaitTime        int    `json:"wait_time"` // seconds between uses
	IsUnique        bool   `json:"is_unique"`
}

type WithdrawLink struct {
	ID              string `json:"id"`
	Wallet          string `json:"wallet"`
	Title           string `json:"title"`
	MinWithdrawable int64  `json:"min_withdrawable"`
	MaxWithdrawable int64  `json:"max_withdrawable"`
	Uses            int    `json:"uses"`
	WaitTime        int    `json:"wait_time"`
	IsUnique        bool   `json:"is_unique"`
	UniqueHash      string `json:"unique_hash"`
	K1              string `json:"k1"`
	OpenTime        int64  `json:"open_time"`
	Used            int    `json:"used"`
	Lnurl           string `json:"lnurl"`
}

type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Code    int    `json:"code"`
	Status  int    `json:"status"`
}

func (err Error) Error() string {
	if err.Message != "" {
		return err.Message
	}
	return err.Detail
}
