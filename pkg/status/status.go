// Package status holds the status/code lookup table used to build response
// envelopes. Entries are keyed by HTTP status plus an application code.
package status

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMissingStatus is returned when a status of 0 is looked up or registered.
var ErrMissingStatus = errors.New("missing status")

// Code is one row of the table.
type Code struct {
	Status      int    `json:"status"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type key struct{ status, code int }

var (
	mu    sync.RWMutex
	table = map[key]Code{}
)

func init() {
	for s, desc := range map[int]string{
		200: "ok",
		201: "created",
		202: "accepted",
		203: "non-authoritative-information",
		204: "no-content",
		205: "reset-content",
		206: "partial-content",
		300: "multiple-choices",
		301: "moved-permanently",
		302: "found",
		303: "see-other",
		304: "not-modified",
		307: "temporary-redirect",
		308: "permanent-redirect",
		400: "bad-request",
		401: "unauthorized",
		402: "payment-required",
		403: "forbidden",
		404: "not-found",
		405: "method-not-allowed",
		406: "not-acceptable",
		407: "proxy-authentication-required",
		408: "request-timeout",
		409: "conflict",
		410: "gone",
		411: "length-required",
		412: "precondition-failed",
		413: "payload-too-large",
		414: "uri-too-long",
		415: "unsupported-media-type",
		416: "range-not-satisfiable",
		417: "expectation-failed",
		418: "im-a-teapot",
		421: "misdirected-request",
		422: "unprocessable-entity",
		423: "locked",
		424: "failed-dependency",
		425: "too-early",
		426: "upgrade-required",
		428: "precondition-required",
		429: "too-many-requests",
		431: "request-header-fields-too-large",
		451: "unavailable-for-legal-reasons",
		500: "internal-server-error",
		501: "not-implemented",
		502: "bad-gateway",
		503: "service-unavailable",
		504: "gateway-timeout",
		505: "http-version-not-supported",
		506: "variant-also-negotiates",
		507: "insufficient-storage",
		508: "loop-detected",
		510: "not-extended",
		511: "network-authentication-required",
	} {
		table[key{s, 0}] = Code{Status: s, Description: desc}
	}
}

// Get resolves status and code in this order: the exact pair, the status with
// code 0, the status group (eg 400) with code 0. When nothing matches it
// returns an "unknown-error" entry carrying the requested status.
func Get(status, code int) (Code, error) {
	if status == 0 {
		return Code{}, ErrMissingStatus
	}

	mu.RLock()
	defer mu.RUnlock()

	if c, ok := table[key{status, code}]; ok {
		return c, nil
	}
	if c, ok := table[key{status, 0}]; ok {
		return c, nil
	}
	if c, ok := table[key{status / 100 * 100, 0}]; ok {
		return c, nil
	}
	return Code{Status: status, Description: "unknown-error"}, nil
}

// MustGet is Get for statuses known to be non-zero.
func MustGet(status, code int) Code {
	c, err := Get(status, code)
	if err != nil {
		panic(err)
	}
	return c
}

// Add registers extra entries. A missing code means 0. The whole batch is
// rejected if any entry has no status.
func Add(codes ...Code) error {
	for i, c := range codes {
		if c.Status == 0 {
			return fmt.Errorf("entry %d: %w", i, ErrMissingStatus)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, c := range codes {
		table[key{c.Status, c.Code}] = c
	}
	return nil
}
