package codec_test

import (
	"bytes"
	"compress/zlib"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/dgc"
	"certpass/internal/dgc/codec"
	"certpass/pkg/dgcerrors"
	"certpass/pkg/testutil/dgctest"
)

func signedQR(t *testing.T) (string, *dgctest.Keypair) {
	t.Helper()
	kp, err := dgctest.NewKeypair("test-key-1")
	require.NoError(t, err)

	cert := dgc.CovCertificate{
		Version:   "1.3.0",
		Name:      dgc.Name{FamilyNameTrans: "MUSTERMANN", GivenNameTrans: "ERIKA"},
		BirthDate: "1964-08-12",
		Vaccinations: []dgc.Vaccination{{
			TargetDisease: "840539006",
			Product:       "EU/1/20/1528",
			DoseNumber:    2, TotalSerialDoses: 2,
			Occurrence: "2026-01-10",
			Country:    "DE",
			ID:         "URN:UVCI:01DE/IZ12345A/ABC",
		}},
	}
	qr, err := dgctest.EncodeQR(cert, "DE", time.Now(), time.Now().Add(24*time.Hour), kp)
	require.NoError(t, err)
	return qr, kp
}

func TestDecodeSignedToken(t *testing.T) {
	qr, kp := signedQR(t)

	token, err := codec.Decode(qr)
	require.NoError(t, err)
	assert.Equal(t, kp.KeyID, token.KeyID())
	assert.NotEmpty(t, token.Payload())

	cwt, err := dgc.DecodeCWT(token.Payload())
	require.NoError(t, err)
	assert.Equal(t, "DE", cwt.Issuer)
	assert.Equal(t, "URN:UVCI:01DE/IZ12345A/ABC", cwt.Certificate.DGCEntry().UVCI())
}

func TestDecodeAcceptsMissingSchemePrefix(t *testing.T) {
	qr, _ := signedQR(t)

	token, err := codec.Decode(qr[len(codec.SchemePrefix):])
	require.NoError(t, err)
	assert.NotEmpty(t, token.Payload())
}

func TestDecodeRejectsBadCompression(t *testing.T) {
	qr := codec.SchemePrefix + dgctest.Base45Encode([]byte("definitely not zlib"))

	_, err := codec.Decode(qr)
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeDecode, dgcerrors.GetCode(err))
}

func TestDecodeRejectsBadCOSE(t *testing.T) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write([]byte("not a cose message"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = codec.Decode(codec.SchemePrefix + dgctest.Base45Encode(compressed.Bytes()))
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeDecode, dgcerrors.GetCode(err))
}

func TestDecodeRejectsMalformedBase45(t *testing.T) {
	_, err := codec.Decode("HC1:NOT A CERTIFICATE")
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeDecode, dgcerrors.GetCode(err))
}
