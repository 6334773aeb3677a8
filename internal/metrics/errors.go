package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Error-kind labels. A failure is classified once, at first observation.
const (
	LabelConnectRefused     = "ConnectRefused"
	LabelConnectTimeout     = "ConnectTimeout"
	LabelDNSFailure         = "DNSFailure"
	LabelTLSFailure         = "TLSFailure"
	LabelConnectReset       = "ConnectionReset"
	LabelServerDisconnected = "ServerDisconnected"
	LabelReadTimeout        = "ReadTimeout"
	LabelCancelled          = "Cancelled"

	labelHTTPStatusPrefix   = "HTTPStatus:"
	labelUnclassifiedPrefix = "Unclassified:"
	maxUnclassifiedRunes    = 50
)

// Phase tells the classifier where in a connection's life the error surfaced.
// Timeouts are reported as ConnectTimeout before streaming and ReadTimeout after.
type Phase int

const (
	PhaseConnect Phase = iota
	PhaseStream
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// LabelHTTPStatus returns the label for a non-success HTTP status.
func LabelHTTPStatus(code int) string {
	return fmt.Sprintf("%s%d", labelHTTPStatusPrefix, code)
}

// LabelUnclassified returns the catch-all label with a shortened message.
func LabelUnclassified(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}
	runes := []rune(msg)
	if len(runes) > maxUnclassifiedRunes {
		msg = string(runes[:maxUnclassifiedRunes])
	}
	return labelUnclassifiedPrefix + msg
}

// Classify maps a transport or protocol error onto the error-kind taxonomy.
// It inspects error types and wrapped sentinel values only; message text is
// used solely as the payload of the Unclassified label.
func Classify(err error, phase Phase) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return LabelCancelled
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return LabelHTTPStatus(coder.HTTPStatus())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return LabelDNSFailure
	}

	if isTLSError(err) {
		return LabelTLSFailure
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return LabelConnectRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNABORTED):
		return LabelConnectReset
	}

	if isTimeout(err) {
		if phase == PhaseStream {
			return LabelReadTimeout
		}
		return LabelConnectTimeout
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return LabelServerDisconnected
	}

	return LabelUnclassified(err.Error())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		authorityEr x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityEr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
