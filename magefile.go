//go:build mage

// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package main

import (
	"os"
	"path"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	packageName = "github.com/n0ot/daqstreamd/cmd/daqstreamd"
	ldflags     = "-X " + packageName + "/commands.Version=$VERSION"
	outDir      = "bin"
	coverFile   = "coverage.out"
)

var Default = Build
var vars map[string]string

// allow user to override go executable by running as GOEXE=xxx mage ... on unix-like systems
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build builds daqstreamd into bin
func Build() error {
	mg.Deps(mkBin)
	return goBuild("build", "-o", path.Join(outDir, "$BIN_NAME"))
}

// BuildRace builds daqstreamd with the race detector enabled
func BuildRace() error {
	mg.Deps(mkBin)
	return goBuild("build", "-race", "-o", path.Join(outDir, "$BIN_NAME"))
}

// Install installs daqstreamd into GOBIN
func Install() error {
	return goBuild("install")
}

// Test runs every package's tests with the race detector enabled
func Test() error {
	return sh.RunV(goexe, "test", "-race", "./...")
}

// Cover runs the tests, and writes a coverage profile to bin/coverage.out
func Cover() error {
	mg.Deps(mkBin)
	profile := path.Join(outDir, coverFile)
	if err := sh.RunV(goexe, "test", "-coverprofile="+profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(goexe, "tool", "cover", "-func="+profile)
}

// Vet runs go vet on every package
func Vet() error {
	return sh.RunV(goexe, "vet", "./...")
}

// Check vets, then tests
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Clean removes all files and directories created by mage targets.
func Clean() error {
	return os.RemoveAll(outDir)
}

// goBuild runs a go subcommand on the daqstreamd package, with the version stamped in.
func goBuild(subcommand string, args ...string) error {
	cmd := append([]string{subcommand, "-ldflags", ldflags}, args...)
	cmd = append(cmd, packageName)
	return sh.RunWith(getVars(), goexe, cmd...)
}

func mkBin() error {
	return os.MkdirAll(outDir, 0755)
}

func getVars() map[string]string {
	if vars != nil {
		return vars
	}

	vars = make(map[string]string)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--long", "--dirty")
	if err != nil {
		version = "unset"
	}
	vars["VERSION"] = version

	vars["BIN_NAME"] = "daqstreamd"
	if os.Getenv("GOOS") == "windows" {
		vars["BIN_NAME"] += ".exe"
	}

	return vars
}
