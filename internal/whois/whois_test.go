package whois

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verisignSample = `   Domain Name: EXAMPLE.COM
   Registry Domain ID: 2336799_DOMAIN_COM-VRSN
   Registrar WHOIS Server: whois.iana.org
   Updated Date: 2023-08-14T07:01:38Z
   Creation Date: 1995-08-14T04:00:00Z
   Registry Expiry Date: 2024-08-13T04:00:00Z
`

const nominetSample = `
    Domain name:
        example.co.uk

    Relevant dates:
        Registered on: 26-Nov-1996
        Expiry date:  26-Nov-2024
`

func TestParseCreationDate(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected time.Time
	}{
		{"verisign", verisignSample, time.Date(1995, 8, 14, 4, 0, 0, 0, time.UTC)},
		{"nominet", nominetSample, time.Date(1996, 11, 26, 0, 0, 0, 0, time.UTC)},
		{"denic 风格", "created: 2001-05-12\n", time.Date(2001, 5, 12, 0, 0, 0, 0, time.UTC)},
		{"cnnic 风格", "Registration Time: 2003-03-17 12:20:05\n", time.Date(2003, 3, 17, 12, 20, 5, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCreationDate(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), got)
		})
	}

	_, err := ParseCreationDate("Domain Name: EXAMPLE.COM\nUpdated Date: 2023-08-14T07:01:38Z\n")
	assert.ErrorIs(t, err, ErrCreationDateNotFound)
}

func TestDomainAge(t *testing.T) {
	c := &Client{
		lookup: func(string) (string, error) { return verisignSample, nil },
		now:    func() time.Time { return time.Date(1995, 8, 24, 4, 0, 0, 0, time.UTC) },
	}
	age, err := c.DomainAge(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 10, age)
}

func TestDomainAgeErrors(t *testing.T) {
	c := &Client{
		lookup: func(string) (string, error) { return "", errors.New("no whois server") },
		now:    time.Now,
	}
	_, err := c.DomainAge(context.Background(), "example.invalid")
	assert.ErrorIs(t, err, ErrLookupFailed)

	block := make(chan struct{})
	defer close(block)
	c.lookup = func(string) (string, error) { <-block; return "", nil }
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.DomainAge(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
