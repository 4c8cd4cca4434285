// Package api implements the orchestrator's thin HTTP surface: a health
// check, build submission/status/listing, the webhook endpoint, and a
// manual cleanup trigger. It is deliberately thin - all real work is
// delegated to internal/build, internal/webhook, and internal/gc.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mobileci/go/sklog"
	"mobileci/internal/build"
	"mobileci/internal/gc"
	"mobileci/internal/toolchain"
	"mobileci/internal/webhook"
)

// API holds the dependencies every handler needs.
type API struct {
	Service       *build.Service
	Scheduler     *gc.Scheduler
	WebhookSecret string
}

// Routes registers every endpoint onto r.
func (a *API) Routes(r chi.Router) {
	r.Get("/", a.handleRoot)
	r.Get("/build/{id}", a.handleGetBuild)
	r.Get("/builds", a.handleListBuilds)
	r.Post("/webhook", a.handleWebhook)
	r.Post("/build", a.handleManualBuild)
	r.Post("/cleanup", a.handleCleanup)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sklog.Errorf("encoding response: %s", err)
	}
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "👋 Flutter CI/CD Container is running!",
	})
}

func (a *API) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := a.Service.GetStatus(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"builds": a.Service.ListBuilds(),
	})
}

// handleWebhook verifies the signature on the raw body, classifies the
// event, and admits a build request if it's one of the two triggering
// cases. Every other outcome returns a neutral 200 ack, except signature
// failures (403) and body-read or payload-decode failures (400).
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "bad request"})
		return
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if !webhook.VerifySignature(a.WebhookSecret, body, sig) {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "forbidden"})
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	req, triggers, err := webhook.Classify(eventType, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "bad request"})
		return
	}
	if !triggers {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	jobID, err := a.Service.Submit(req)
	if err != nil {
		sklog.Errorf("submitting webhook-triggered build: %s", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "build_id": jobID})
}

// manualBuildForm is the normalized shape of a POST /build request, whether
// it arrived as JSON or as a form-encoded body.
type manualBuildForm struct {
	Flavor            string
	Platform          string
	BuildName         string
	BuildNumber       string
	BranchName        string
	FVMFlavor         string
	FlutterSDKVersion string
	GradleVersion     string
	CocoapodsVersion  string
	FastlaneVersion   string
}

func (a *API) handleManualBuild(w http.ResponseWriter, r *http.Request) {
	form, err := parseManualBuildForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "bad request"})
		return
	}

	flavor := form.Flavor
	if flavor == "" {
		flavor = "dev"
	}
	platform := form.Platform
	if platform == "" {
		platform = "all"
	}

	req := build.Request{
		Flavor:      flavor,
		Platform:    platform,
		BuildName:   form.BuildName,
		BuildNumber: form.BuildNumber,
		Branch:      form.BranchName,
		FVMFlavor:   form.FVMFlavor,
		Overrides: toolchain.Overrides{
			Flutter:   form.FlutterSDKVersion,
			Gradle:    form.GradleVersion,
			Cocoapods: form.CocoapodsVersion,
			Fastlane:  form.FastlaneVersion,
		},
	}

	jobID, err := a.Service.Submit(req)
	if err != nil {
		sklog.Errorf("submitting manual build: %s", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "manual trigger ok",
		"build_id": jobID,
	})
}

func parseManualBuildForm(r *http.Request) (manualBuildForm, error) {
	var form manualBuildForm
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var raw map[string]string
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
			return form, err
		}
		get := func(k string) string { return strings.TrimSpace(raw[k]) }
		form = manualBuildForm{
			Flavor:            get("flavor"),
			Platform:          get("platform"),
			BuildName:         get("build_name"),
			BuildNumber:       get("build_number"),
			BranchName:        get("branch_name"),
			FVMFlavor:         get("fvm_flavor"),
			FlutterSDKVersion: get("flutter_sdk_version"),
			GradleVersion:     get("gradle_version"),
			CocoapodsVersion:  get("cocoapods_version"),
			FastlaneVersion:   get("fastlane_version"),
		}
		return form, nil
	}

	if err := r.ParseForm(); err != nil {
		return form, err
	}
	get := func(k string) string { return strings.TrimSpace(r.FormValue(k)) }
	form = manualBuildForm{
		Flavor:            get("flavor"),
		Platform:          get("platform"),
		BuildName:         get("build_name"),
		BuildNumber:       get("build_number"),
		BranchName:        get("branch_name"),
		FVMFlavor:         get("fvm_flavor"),
		FlutterSDKVersion: get("flutter_sdk_version"),
		GradleVersion:     get("gradle_version"),
		CocoapodsVersion:  get("cocoapods_version"),
		FastlaneVersion:   get("fastlane_version"),
	}
	return form, nil
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	res := a.Scheduler.RunNow()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": formatCleanupMessage(res),
	})
}

func formatCleanupMessage(res gc.Result) string {
	return fmt.Sprintf("removed %d build dir(s), %d orphaned lock(s)", res.BuildsDeleted, res.LocksDeleted)
}
