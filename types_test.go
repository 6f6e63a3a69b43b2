package bootstrap

import (
	"errors"
	"testing"
)

func TestParseArtifactRef(t *testing.T) {
	tests := []struct {
		input   string
		want    Artifact
		wantErr bool
	}{
		{
			input: "org/repo/model.gguf",
			want:  Artifact{Repo: "org/repo", File: "model.gguf"},
		},
		{
			input: "org/repo/model.gguf@v2",
			want:  Artifact{Repo: "org/repo", File: "model.gguf", Revision: "v2"},
		},
		{
			input: "org/model.bin",
			want:  Artifact{Repo: "org", File: "model.bin"},
		},
		{input: "", wantErr: true},
		{input: "noslash", wantErr: true},
		{input: "trailing/", wantErr: true},
		{input: "/leading", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseArtifactRef(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("ParseArtifactRef(%q) err = %v, want ErrInvalidConfig", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArtifactRef(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseArtifactRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestArtifactString(t *testing.T) {
	a := Artifact{Repo: "org/repo", File: "m.gguf"}
	if got := a.String(); got != "org/repo/m.gguf" {
		t.Errorf("String = %q", got)
	}

	a.Revision = "v3"
	if got := a.String(); got != "org/repo/m.gguf@v3" {
		t.Errorf("String = %q", got)
	}
}

func TestArtifactRev(t *testing.T) {
	a := Artifact{Repo: "o", File: "f"}
	if a.rev() != "main" {
		t.Errorf("rev = %q, want main", a.rev())
	}
	a.Revision = "pr-7"
	if a.rev() != "pr-7" {
		t.Errorf("rev = %q, want pr-7", a.rev())
	}
}

func TestRetryPolicyIsZero(t *testing.T) {
	if !(RetryPolicy{}).isZero() {
		t.Error("zero policy should report isZero")
	}
	if (RetryPolicy{MaxAttempts: -1}).isZero() {
		t.Error("explicit retry-forever policy is not zero")
	}
	if DefaultRetryPolicy().isZero() {
		t.Error("default policy is not zero")
	}
}

func TestDoctorReportOK(t *testing.T) {
	r := DoctorReport{Checks: []Check{{Name: "a", OK: true}, {Name: "b", OK: true}}}
	if !r.OK() {
		t.Error("all-passing report should be OK")
	}

	r.Checks = append(r.Checks, Check{Name: "c"})
	if r.OK() {
		t.Error("report with a failing check should not be OK")
	}

	if !(DoctorReport{}).OK() {
		t.Error("empty report is vacuously OK")
	}
}
