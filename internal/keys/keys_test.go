package keys

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zktoken/internal/curve"
)

func TestGenerate(t *testing.T) {
	kp, err := Generate(rand.Reader)
	require.NoError(t, err)
	require.True(t, kp.Priv.Sign() > 0 && kp.Priv.Cmp(curve.Order()) < 0)
	require.NoError(t, curve.Validate(kp.Pub))

	expect, err := curve.ScalarMul(kp.Priv, curve.Base8())
	require.NoError(t, err)
	require.True(t, kp.Pub.Equal(expect))
}

func TestFromPrivateRejectsBadScalars(t *testing.T) {
	_, err := FromPrivate(big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidScalar)
	_, err = FromPrivate(curve.Order())
	require.ErrorIs(t, err, ErrInvalidScalar)
	_, err = FromPrivate(nil)
	require.ErrorIs(t, err, ErrInvalidScalar)

	_, err = FromPrivate(big.NewInt(1))
	require.NoError(t, err)
}

func TestDerivationMessage(t *testing.T) {
	addr := common.HexToAddress("0xAbCdEf0123456789abcdef0123456789ABCDEF01")
	msg := DerivationMessage(addr)
	require.Equal(t, "zktoken-shielded-key-v1:0xabcdef0123456789abcdef0123456789abcdef01", msg)
}

func TestFromHostSignatureDeterministic(t *testing.T) {
	addr := common.HexToAddress("0x00112233445566778899aabbccddeeff00112233")
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i * 3)
	}
	kp1, err := FromHostSignature(addr, sig)
	require.NoError(t, err)
	kp2, err := FromHostSignature(addr, sig)
	require.NoError(t, err)
	require.Equal(t, 0, kp1.Priv.Cmp(kp2.Priv))
	require.True(t, kp1.Pub.Equal(kp2.Pub))

	// A different signature lands on a different key.
	sig[0] ^= 0xff
	kp3, err := FromHostSignature(addr, sig)
	require.NoError(t, err)
	require.NotEqual(t, 0, kp1.Priv.Cmp(kp3.Priv))

	_, err = FromHostSignature(addr, nil)
	require.Error(t, err)
}

func TestECDHAgreement(t *testing.T) {
	for i := 0; i < 1000; i++ {
		a, err := Generate(rand.Reader)
		require.NoError(t, err)
		b, err := Generate(rand.Reader)
		require.NoError(t, err)

		sab, err := ECDH(a.Priv, b.Pub)
		require.NoError(t, err)
		sba, err := ECDH(b.Priv, a.Pub)
		require.NoError(t, err)
		require.True(t, sab.Equal(sba), "ECDH mismatch at iteration %d", i)
	}
}

func TestECDHRejectsBadPeer(t *testing.T) {
	a, err := Generate(rand.Reader)
	require.NoError(t, err)
	bogus := curve.FromBig(big.NewInt(1), big.NewInt(2))
	_, err = ECDH(a.Priv, bogus)
	require.ErrorIs(t, err, curve.ErrPointNotOnCurve)
}

func TestZeroize(t *testing.T) {
	kp, err := Generate(rand.Reader)
	require.NoError(t, err)
	kp.Zeroize()
	require.Equal(t, 0, kp.Priv.Sign())
}
