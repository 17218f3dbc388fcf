package handlers

import (
	"net/http"
)

// Build information, set at link time with -ldflags "-X ..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// VersionInfo describes the running build
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// GetVersion handles /version
func GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, VersionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime})
}
