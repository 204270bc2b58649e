package chain

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func newHTTPClient(retryMax int) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxConnsPerHost:     32,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient = &http.Client{Transport: transport, Timeout: 60 * time.Second}
	client.Logger = nil

	return client.StandardClient()
}
