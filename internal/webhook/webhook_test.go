package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"mobileci/go/testutils"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{"hello":"world"}`)
	require.True(t, VerifySignature("secret", body, sign("secret", body)))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{"hello":"world"}`)
	require.False(t, VerifySignature("secret", body, sign("wrong-secret", body)))
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	testutils.SmallTest(t)

	sig := sign("secret", []byte(`{"hello":"world"}`))
	require.False(t, VerifySignature("secret", []byte(`{"hello":"tampered"}`), sig))
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	testutils.SmallTest(t)

	require.False(t, VerifySignature("secret", []byte("x"), ""))
}

func TestVerifySignature_WrongPrefix(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte("x")
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	require.False(t, VerifySignature("secret", body, "sha1="+hex.EncodeToString(mac.Sum(nil))))
}

func TestClassify_MergedReleaseDevPR(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{
		"action": "closed",
		"pull_request": {
			"merged": true,
			"base": {"ref": "develop"},
			"head": {"ref": "release-dev-v1.2.3"}
		}
	}`)
	req, ok, err := Classify("pull_request", body)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dev", req.Flavor)
	require.Equal(t, "all", req.Platform)
}

func TestClassify_UnmergedPRDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{
		"action": "closed",
		"pull_request": {
			"merged": false,
			"base": {"ref": "develop"},
			"head": {"ref": "release-dev-v1.2.3"}
		}
	}`)
	_, ok, err := Classify("pull_request", body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_WrongBaseBranchDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{
		"action": "closed",
		"pull_request": {
			"merged": true,
			"base": {"ref": "main"},
			"head": {"ref": "release-dev-v1.2.3"}
		}
	}`)
	_, ok, err := Classify("pull_request", body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_WrongHeadPrefixDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{
		"action": "closed",
		"pull_request": {
			"merged": true,
			"base": {"ref": "develop"},
			"head": {"ref": "feature/foo"}
		}
	}`)
	_, ok, err := Classify("pull_request", body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_SemverTagCreateTriggersProd(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{"ref_type": "tag", "ref": "1.2.3"}`)
	req, ok, err := Classify("create", body)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "prod", req.Flavor)
	require.Equal(t, "all", req.Platform)
}

func TestClassify_NonSemverTagDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{"ref_type": "tag", "ref": "v1.2"}`)
	_, ok, err := Classify("create", body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_BranchCreateDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	body := []byte(`{"ref_type": "branch", "ref": "1.2.3"}`)
	_, ok, err := Classify("create", body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_UnknownEventDoesNotTrigger(t *testing.T) {
	testutils.SmallTest(t)

	_, ok, err := Classify("ping", []byte(`{}`))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClassify_MalformedJSONIsAnError(t *testing.T) {
	testutils.SmallTest(t)

	_, ok, err := Classify("create", []byte(`{not json`))
	require.Error(t, err)
	require.False(t, ok)

	_, ok, err = Classify("pull_request", []byte(`{not json`))
	require.Error(t, err)
	require.False(t, ok)
}
