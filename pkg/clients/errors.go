package clients

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/mikeboe/deep-research/pkg/research"
)

// classifyStatus maps an HTTP status from a provider into the research error taxonomy.
func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return research.Unavailable(err)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return research.Transient(err)
	default:
		return err
	}
}

var statusInMessage = regexp.MustCompile(`(?i)status(?: code)?:? (\d{3})`)

// classify handles errors that carry no typed status: context errors pass through,
// network errors are transient and a status code in the message is used when present.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return research.Transient(err)
	}
	if m := statusInMessage.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(code, err)
	}
	return err
}
