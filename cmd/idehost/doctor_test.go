package main

import (
	"testing"

	"github.com/musher-dev/idehost/internal/doctor"
	"github.com/musher-dev/idehost/internal/testutil"
)

func renderDoctorOutput(results []doctor.Result) string {
	out, buf := testWriter()
	passed, failed, warnings := doctor.Summary(results)
	renderDoctor(out, results, passed, failed, warnings)

	return buf.String()
}

func TestDoctorOutput_AllPass_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Config File", Status: doctor.StatusPass, Message: "Using defaults (no config file)"},
		{Name: "Backend Entry", Status: doctor.StatusPass, Message: "/usr/local/bin/idehost (builtin:extension-host.yaml)"},
		{Name: "Terminal Shell", Status: doctor.StatusPass, Message: "/bin/bash"},
		{Name: "PTY", Status: doctor.StatusPass, Message: "/dev/pts/4"},
		{Name: "Terminal Address", Status: doctor.StatusPass, Message: "127.0.0.1:8729 available"},
		{Name: "CLI Version", Status: doctor.StatusPass, Message: "v0.4.0 (1a2b3c4)"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_all_pass.golden")
}

func TestDoctorOutput_Mixed_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Config File", Status: doctor.StatusPass, Message: "/home/dev/.config/idehost/config.yaml"},
		{Name: "Backend Entry", Status: doctor.StatusFail, Message: "/opt/ide/extension-host", Detail: "Entry is not an executable file"},
		{Name: "Terminal Shell", Status: doctor.StatusPass, Message: "/bin/zsh"},
		{Name: "PTY", Status: doctor.StatusPass, Message: "/dev/pts/4"},
		{Name: "Terminal Address", Status: doctor.StatusWarn, Message: "127.0.0.1:8729 unavailable", Detail: "listen tcp 127.0.0.1:8729: bind: address already in use"},
		{Name: "CLI Version", Status: doctor.StatusWarn, Message: "Development build"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_mixed.golden")
}
