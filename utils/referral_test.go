package utils

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReferralCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateReferralCode()
		require.NoError(t, err)
		assert.Len(t, code, ReferralCodeLength)
		assert.True(t, IsReferralCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestIsReferralCode(t *testing.T) {
	assert.True(t, IsReferralCode("ABCD2345"))
	assert.False(t, IsReferralCode("ABCD234"))
	assert.False(t, IsReferralCode("ABCD234O"))
	assert.False(t, IsReferralCode("abcd2345"))
}

func TestBuildReferralLink(t *testing.T) {
	assert.Equal(t, "https://app.example.com/register?ref=ABCD2345", BuildReferralLink("https://app.example.com/", "ABCD2345"))
	assert.Equal(t, "http://localhost:8080/register?ref=A%26B", BuildReferralLink("http://localhost:8080", "A&B"))
}

func TestGenerateQRCodePNG(t *testing.T) {
	raw, err := GenerateQRCodePNG("https://app.example.com/register?ref=ABCD2345", 200)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	_, err = GenerateQRCodePNG("https://app.example.com/register?ref=ABCD2345", 5)
	assert.Error(t, err)
}
