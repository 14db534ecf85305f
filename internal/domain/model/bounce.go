package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BounceType classifies an inbound bounce notification.
type BounceType string

const (
	// BounceTypePermanent is a hard bounce (5xx-style, e.g. user unknown).
	BounceTypePermanent BounceType = "Permanent"
	// BounceTypeTransient is a soft bounce (4xx-style).
	BounceTypeTransient BounceType = "Transient"
)

// TestSendStatus maps the bounce type onto the test-send lifecycle.
func (t BounceType) TestSendStatus() TestSendStatus {
	if t == BounceTypePermanent {
		return TestSendStatusBounceHard
	}
	return TestSendStatusBounceSoft
}

// bounceTokenPattern matches tokens of the form vr{emailID}-{random}.
var bounceTokenPattern = regexp.MustCompile(`vr(\d+)-([0-9a-f]{8})`)

// MintBounceToken creates a fresh bounce token bound to a verification row.
func MintBounceToken(emailID int64) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("vr%d-%s", emailID, random)
}

// BounceReturnPath builds the VERP-style envelope sender for one test-send.
func BounceReturnPath(token, bounceDomain string) string {
	return fmt.Sprintf("bounce+%s@%s", token, bounceDomain)
}

// ExtractBounceToken scans arbitrary text (a tag value, a return-path address,
// a subject line, or a free-text body) for an embedded bounce token and
// returns the token plus the email id it is bound to.
func ExtractBounceToken(text string) (token string, emailID int64, ok bool) {
	match := bounceTokenPattern.FindStringSubmatch(text)
	if match == nil {
		return "", 0, false
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return match[0], id, true
}

// BounceNotification is a provider-style bounce event pulled from the inbound
// push queue. Fields are consulted for token recovery in priority order:
// explicit tag, return-path address, subject, free-text scan, then a database
// fallback keyed by the bounced recipient.
type BounceNotification struct {
	NotificationType string     `json:"notificationType"`
	Type             BounceType `json:"bounceType"`
	SubType          string     `json:"bounceSubType"`
	Recipients       []string   `json:"recipients"`
	Tag              string     `json:"tag"`
	ReturnPath       string     `json:"returnPath"`
	Subject          string     `json:"subject"`
	RawText          string     `json:"rawText"`
	Code             string     `json:"code"`
	Reason           string     `json:"reason"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Token attempts to recover the bounce token from the notification payload.
func (n *BounceNotification) Token() (string, int64, bool) {
	for _, field := range []string{n.Tag, n.ReturnPath, n.Subject, n.RawText} {
		if field == "" {
			continue
		}
		if token, emailID, ok := ExtractBounceToken(field); ok {
			return token, emailID, true
		}
	}
	return "", 0, false
}

// Hard reports whether the bounce is permanent.
func (n *BounceNotification) Hard() bool {
	return n.Type == BounceTypePermanent
}
