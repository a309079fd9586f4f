// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grant

import (
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vitals"
)

var (
	contractA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contractB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestGrantVerify(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		grant Grant
		valid bool
	}{
		{
			name: "valid",
			grant: Grant{
				Contracts: []common.Address{contractA},
				StartTime: start,
				Duration:  time.Hour,
			},
			valid: true,
		},
		{
			name: "no contracts",
			grant: Grant{
				StartTime: start,
				Duration:  time.Hour,
			},
		},
		{
			name: "zero duration",
			grant: Grant{
				Contracts: []common.Address{contractA},
				StartTime: start,
			},
		},
		{
			name: "negative duration",
			grant: Grant{
				Contracts: []common.Address{contractA},
				StartTime: start,
				Duration:  -time.Hour,
			},
		},
		{
			name: "zero start time",
			grant: Grant{
				Contracts: []common.Address{contractA},
				Duration:  time.Hour,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grant.Verify()
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, vitals.ErrValidation)
			}
		})
	}
}

func TestGrantValidAtBoundaries(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	g := Grant{
		Contracts: []common.Address{contractA},
		StartTime: start,
		Duration:  time.Hour,
	}

	// The window is half-open: [start, start+duration).
	require.False(t, g.ValidAt(start.Add(-time.Second)))
	require.True(t, g.ValidAt(start))
	require.True(t, g.ValidAt(start.Add(time.Hour-time.Second)))
	require.False(t, g.ValidAt(start.Add(time.Hour)))
	require.Equal(t, start.Add(time.Hour), g.ExpiresAt())
}

func TestGrantCovers(t *testing.T) {
	g := Grant{Contracts: []common.Address{contractA}}
	require.True(t, g.Covers(contractA))
	require.False(t, g.Covers(contractB))
}

func TestSignedGrantCheckCurrent(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	sg := &SignedGrant{
		Grant: Grant{
			Contracts: []common.Address{contractA},
			StartTime: start,
			Duration:  time.Hour,
		},
	}

	require.NoError(t, sg.CheckCurrent(start.Add(time.Minute)))
	require.ErrorIs(t, sg.CheckCurrent(start.Add(2*time.Hour)), vitals.ErrAuthorizationExpired)
	require.ErrorIs(t, sg.CheckCurrent(start.Add(-time.Minute)), vitals.ErrAuthorizationExpired)
}

func TestKeypairSealOpenRoundTrip(t *testing.T) {
	session, err := GenerateKeypair()
	require.NoError(t, err)
	gateway, err := GenerateKeypair()
	require.NoError(t, err)

	plaintext := []byte("sealed for the session key only")
	sealed, err := Seal(plaintext, session.PublicKey(), gateway.PrivateKeyRef())
	require.NoError(t, err)

	opened, err := session.Open(sealed, gateway.PublicKey())
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	// A different keypair cannot open the box.
	other, err := GenerateKeypair()
	require.NoError(t, err)
	_, err = other.Open(sealed, gateway.PublicKey())
	require.Error(t, err)
}

func TestKeypairOpenRejectsTamperedBox(t *testing.T) {
	session, err := GenerateKeypair()
	require.NoError(t, err)
	gateway, err := GenerateKeypair()
	require.NoError(t, err)

	sealed, err := Seal([]byte{1, 2, 3, 4}, session.PublicKey(), gateway.PrivateKeyRef())
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = session.Open(sealed, gateway.PublicKey())
	require.Error(t, err)

	_, err = session.Open([]byte{1, 2, 3}, gateway.PublicKey())
	require.Error(t, err)
}

func TestKeypairZeroDiscardsKey(t *testing.T) {
	session, err := GenerateKeypair()
	require.NoError(t, err)
	gateway, err := GenerateKeypair()
	require.NoError(t, err)

	sealed, err := Seal([]byte("x"), session.PublicKey(), gateway.PrivateKeyRef())
	require.NoError(t, err)

	session.Zero()
	require.Nil(t, session.PrivateKeyRef())
	_, err = session.Open(sealed, gateway.PublicKey())
	require.ErrorIs(t, err, errKeyDiscarded)

	// Idempotent.
	session.Zero()
}
