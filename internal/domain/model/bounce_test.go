package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintBounceToken_BindsEmailID(t *testing.T) {
	token := MintBounceToken(42)
	assert.Regexp(t, `^vr42-[0-9a-f]{8}$`, token)

	parsed, emailID, ok := ExtractBounceToken(token)
	require.True(t, ok)
	assert.Equal(t, token, parsed)
	assert.Equal(t, int64(42), emailID)
}

func TestMintBounceToken_Unique(t *testing.T) {
	assert.NotEqual(t, MintBounceToken(1), MintBounceToken(1))
}

func TestBounceReturnPath(t *testing.T) {
	assert.Equal(t,
		"bounce+vr7-00c0ffee@bounces.example.com",
		BounceReturnPath("vr7-00c0ffee", "bounces.example.com"),
	)
}

func TestExtractBounceToken_FromSurroundingText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		emailID int64
		ok      bool
	}{
		{
			name:    "return path address",
			text:    "bounce+vr19-deadbeef@bounces.example.com",
			emailID: 19,
			ok:      true,
		},
		{
			name:    "free text body",
			text:    "Final-Recipient: rfc822; ghost@acme.com\nX-Token: vr7-0badf00d trailing",
			emailID: 7,
			ok:      true,
		},
		{
			name: "no token present",
			text: "550 5.1.1 user unknown",
			ok:   false,
		},
		{
			name: "wrong random length",
			text: "vr7-abc",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, emailID, ok := ExtractBounceToken(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.emailID, emailID)
			}
		})
	}
}

func TestBounceNotification_Token_FieldPrecedence(t *testing.T) {
	n := &BounceNotification{
		Tag:        "vr1-aaaaaaaa",
		ReturnPath: "bounce+vr2-bbbbbbbb@bounces.example.com",
		Subject:    "Undeliverable vr3-cccccccc",
		RawText:    "vr4-dddddddd",
	}

	_, emailID, ok := n.Token()
	require.True(t, ok)
	assert.Equal(t, int64(1), emailID, "tag must win over later fields")

	n.Tag = ""
	_, emailID, _ = n.Token()
	assert.Equal(t, int64(2), emailID, "return path is next")

	n.ReturnPath = ""
	_, emailID, _ = n.Token()
	assert.Equal(t, int64(3), emailID, "subject is next")

	n.Subject = ""
	_, emailID, _ = n.Token()
	assert.Equal(t, int64(4), emailID, "free text is last")

	n.RawText = ""
	_, _, ok = n.Token()
	assert.False(t, ok)
}

func TestBounceType_TestSendStatus(t *testing.T) {
	assert.Equal(t, TestSendStatusBounceHard, BounceTypePermanent.TestSendStatus())
	assert.Equal(t, TestSendStatusBounceSoft, BounceTypeTransient.TestSendStatus())
}

func TestBounceNotification_Hard(t *testing.T) {
	assert.True(t, (&BounceNotification{Type: BounceTypePermanent}).Hard())
	assert.False(t, (&BounceNotification{Type: BounceTypeTransient}).Hard())
}
