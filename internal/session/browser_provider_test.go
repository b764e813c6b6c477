package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserProviderWithoutBrowser(t *testing.T) {
	// Targets that need a minted token can be registered without a live
	// browser (CLI runs skip the browser setup). Acquire must fail as a
	// credential error instead of dereferencing the missing browser.
	p := &BrowserProvider{
		PageURL:     "https://example.test/",
		TokenCookie: "aws-waf-token",
	}

	sess, err := p.Acquire(context.Background(), "")
	require.ErrorIs(t, err, ErrCredentialAcquisition)
	assert.Nil(t, sess)

	sess, err = p.Refresh(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrCredentialAcquisition)
	assert.Nil(t, sess)
}
