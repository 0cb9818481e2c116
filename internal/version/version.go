// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of feebump.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// semanticAlphabet defines the characters allowed in the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// These constants define the application version and follow the semantic
// versioning 2.0.0 spec (http://semver.org/).
const (
	Major uint = 0
	Minor uint = 1
	Patch uint = 0
)

var (
	// PreRelease is defined as a variable so it can be overridden during
	// the build process with:
	// '-ldflags "-X github.com/btcsuite/feebump/internal/version.PreRelease=foo"'
	PreRelease = "beta"

	// BuildMetadata is defined as a variable so it can be overridden
	// during the build process with:
	// '-ldflags "-X github.com/btcsuite/feebump/internal/version.BuildMetadata=foo"'
	BuildMetadata = ""
)

// String returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (http://semver.org/).  Invalid characters in
// the pre-release and build metadata are dropped.
func String() string {
	version := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

	// Only the build metadata may contain dots.
	preRelease := normalize(strings.ReplaceAll(PreRelease, ".", ""))
	if preRelease != "" {
		version = fmt.Sprintf("%s-%s", version, preRelease)
	}
	if build := normalize(BuildMetadata); build != "" {
		version = fmt.Sprintf("%s+%s", version, build)
	}

	return version
}

// Full returns the version line printed by --version.
func Full(appName string) string {
	return fmt.Sprintf("%s version %s (Go version %s %s/%s)", appName,
		String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// normalize returns str stripped of the characters not in semanticAlphabet.
func normalize(str string) string {
	var b strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
