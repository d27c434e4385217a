package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var formsDir = filepath.Join("..", "..", "forms")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestFormsList(t *testing.T) {
	out, err := run(t, "forms", "list", "--dir", formsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "equipment")
	assert.Contains(t, out, "/temperature/logs")
}

func TestFormsCheck(t *testing.T) {
	good := filepath.Join(formsDir, "departments.yaml")
	bad := writeFile(t, "bad.yaml", "id: broken\nfields:\n  - name: a\n    type: colour\n")

	out, err := run(t, "forms", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good+" (departments")

	out, err = run(t, "forms", "check", good, bad)
	assert.EqualError(t, err, "1 of 2 definitions invalid")
	assert.Contains(t, out, "FAIL "+bad)
}

func TestFormsValidate(t *testing.T) {
	ok := writeFile(t, "ok.yaml", "equipment_type: freezer\nmin_temp_fahrenheit: -10\nmax_temp_fahrenheit: 0\n")
	out, err := run(t, "forms", "validate", "--dir", formsDir, "temperature_points", ok)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: temperature_points accepts")

	bad := writeFile(t, "bad.yaml", "min_temp_fahrenheit: 300\nmax_temp_fahrenheit: abc\n")
	out, err = run(t, "forms", "validate", "--dir", formsDir, "temperature_points", bad)
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "equipment_type: This field is required")
	assert.Contains(t, out, "max_temp_fahrenheit: Must be a valid number")
	assert.Contains(t, out, "min_temp_fahrenheit: Must be at most 212")
}

func TestFormsValidateRoleFields(t *testing.T) {
	vals := writeFile(t, "user.yaml", "username: sam_b\nrole: superuser\npassword: hunter22x\nconfirm_password: hunter22x\n")

	_, err := run(t, "forms", "validate", "--dir", formsDir, "users", vals)
	require.NoError(t, err, "staff cannot see role, so its value is ignored")

	out, err := run(t, "forms", "validate", "--dir", formsDir, "--role", "admin", "users", vals)
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "role:")
}

func TestFormsValidateNewUserNeedsPassword(t *testing.T) {
	vals := writeFile(t, "user.yaml", "username: sam_b\n")

	out, err := run(t, "forms", "validate", "--dir", formsDir, "users", vals)
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "password: This field is required")
}

func TestFormsValidateUnknownForm(t *testing.T) {
	vals := writeFile(t, "x.yaml", "a: b\n")
	_, err := run(t, "forms", "validate", "--dir", formsDir, "nope", vals)
	assert.ErrorContains(t, err, "unknown form")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "storedash dev")
}
