// Package webhook verifies signed GitHub events and classifies them into
// normalized build requests. The signature check validates the SHA-256
// X-Hub-Signature-256 header, not the legacy SHA-1 X-Hub-Signature.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"mobileci/internal/build"
)

var tagRE = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// VerifySignature checks header (the raw value of X-Hub-Signature-256)
// against an HMAC-SHA256 of body keyed by secret. Comparison is
// constant-time with respect to the computed digest.
func VerifySignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// pullRequestPayload mirrors the subset of GitHub's pull_request event
// this orchestrator classifies on (action, merged, base.ref, head.ref).
type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Merged bool `json:"merged"`
		Base   struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
}

// createPayload mirrors the subset of GitHub's create event (branch/tag
// creation) this orchestrator classifies on.
type createPayload struct {
	RefType string `json:"ref_type"`
	Ref     string `json:"ref"`
}

// Classify inspects a verified event (eventType from the X-GitHub-Event
// header, body the raw JSON payload) and returns the build request it
// triggers, if any. Only a merged release-dev PR into develop and a
// semver tag creation trigger builds; every other event returns ok=false
// so the caller can acknowledge it neutrally. A payload that fails to
// decode for one of the two triggering event types is an error, not a
// neutral ack.
func Classify(eventType string, body []byte) (build.Request, bool, error) {
	switch eventType {
	case "pull_request":
		return classifyPullRequest(body)
	case "create":
		return classifyCreate(body)
	default:
		return build.Request{}, false, nil
	}
}

func classifyPullRequest(body []byte) (build.Request, bool, error) {
	var pr pullRequestPayload
	if err := json.Unmarshal(body, &pr); err != nil {
		return build.Request{}, false, fmt.Errorf("decoding pull_request payload: %w", err)
	}
	if pr.Action != "closed" || !pr.PullRequest.Merged {
		return build.Request{}, false, nil
	}
	if pr.PullRequest.Base.Ref != "develop" {
		return build.Request{}, false, nil
	}
	if !strings.HasPrefix(pr.PullRequest.Head.Ref, "release-dev-v") {
		return build.Request{}, false, nil
	}
	return build.Request{Flavor: "dev", Platform: "all"}, true, nil
}

func classifyCreate(body []byte) (build.Request, bool, error) {
	var c createPayload
	if err := json.Unmarshal(body, &c); err != nil {
		return build.Request{}, false, fmt.Errorf("decoding create payload: %w", err)
	}
	if c.RefType != "tag" || !tagRE.MatchString(c.Ref) {
		return build.Request{}, false, nil
	}
	return build.Request{Flavor: "prod", Platform: "all"}, true, nil
}
