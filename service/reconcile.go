package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/talentbridge/trustlayer/core"
)

// partyKeys are the names the chain service may use for each party
var partyKeys = map[core.Role][]string{
	core.RoleEmployer:  {"employer"},
	core.RoleApplicant: {"employee", "applicant"},
}

// ChainFlags maps a loaded chain contract onto per-party signature flags. It
// understands flat fields (employerSigned, employeeSignedAt) and a nested
// signatures.<party>.{signed|completed, signedAt|timestamp} object. Fields
// that cannot be found stay nil.
func ChainFlags(raw map[string]any) core.ChainSignatureFlags {
	var f core.ChainSignatureFlags
	f.EmployerSigned, f.EmployerSignedAt = partyFlags(raw, partyKeys[core.RoleEmployer])
	f.ApplicantSigned, f.ApplicantSignedAt = partyFlags(raw, partyKeys[core.RoleApplicant])
	return f
}

func partyFlags(raw map[string]any, keys []string) (signed *bool, at *time.Time) {
	sigs, _ := raw["signatures"].(map[string]any)
	for _, key := range keys {
		if signed == nil {
			signed = boolField(raw[key+"Signed"])
		}
		if at == nil {
			at = timeField(raw[key+"SignedAt"])
		}
		nested, ok := sigs[key].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range []string{"signed", "completed"} {
			if signed == nil {
				signed = boolField(nested[name])
			}
		}
		for _, name := range []string{"signedAt", "timestamp"} {
			if at == nil {
				at = timeField(nested[name])
			}
		}
	}
	if signed == nil && at != nil {
		t := true
		signed = &t
	}
	return signed, at
}

func boolField(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

// timeField accepts epoch seconds, epoch milliseconds or RFC 3339
func timeField(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return nil
		}
		t = epoch(int64(x))
	case int64:
		if x <= 0 {
			return nil
		}
		t = epoch(x)
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil && n > 0 {
			t = epoch(n)
			break
		}
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

func epoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// Drift lists where the chain disagrees with the local record
type Drift struct {
	Employer  bool
	Applicant bool
}

// Any reports whether either party drifted
func (d Drift) Any() bool { return d.Employer || d.Applicant }

func compareFlags(c *core.ContractEscrow, f core.ChainSignatureFlags) Drift {
	return Drift{
		Employer:  f.EmployerSigned != nil && *f.EmployerSigned != c.EmployerSigned,
		Applicant: f.ApplicantSigned != nil && *f.ApplicantSigned != c.ApplicantSigned,
	}
}
