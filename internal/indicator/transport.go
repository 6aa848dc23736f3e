package indicator

import (
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that counts every request as activity
// until its response body is closed or the round trip fails.
type Transport struct {
	// Base performs the request. Nil means http.DefaultTransport.
	Base http.RoundTripper
	// Indicator receives the activity. Nil means Default().
	Indicator *Indicator
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	end := t.indicator().Begin()
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		end()
		return nil, err
	}
	if resp.Body == nil {
		end()
		return resp, nil
	}
	resp.Body = &trackedBody{ReadCloser: resp.Body, end: end}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) indicator() *Indicator {
	if t.Indicator != nil {
		return t.Indicator
	}
	return Default()
}

type trackedBody struct {
	io.ReadCloser
	end func()
}

func (b *trackedBody) Close() error {
	err := b.ReadCloser.Close()
	b.end()
	return err
}
