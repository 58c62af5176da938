package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()

	writeManifest(t, dir, "github.yaml", `
name: github
title: GitHub
requiredSecrets:
  - name: github_client_id
  - name: github_client_secret
oauth:
  authorizationUrl: https://github.com/login/oauth/authorize
  tokenUrl: https://github.com/login/oauth/access_token
  scopes: [repo, read:user]
`)
	writeManifest(t, dir, "jira.yaml", `
name: jira
title: Jira
authMethods:
  - id: oauth
    requiredFields: [jira_client_id, jira_client_secret]
  - id: api_token
    requiredFields: [jira_host, jira_email, jira_api_token]
`)

	loader := NewLoader(dir, zap.NewNop())
	manifests := loader.Load()

	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"github", "jira", "atlassian"}, names)

	github := manifests[0]
	require.NotNil(t, github.OAuth)
	assert.Equal(t, "https://github.com/login/oauth/authorize", github.OAuth.AuthorizationURL)
	assert.Equal(t, []string{"repo", "read:user"}, github.OAuth.Scopes)

	jira := manifests[1]
	require.Len(t, jira.AuthMethods, 2)
	assert.Equal(t, "oauth", jira.AuthMethods[0].ID)
	require.NotNil(t, jira.Method("api_token"))
	assert.Equal(t, []string{"jira_host", "jira_email", "jira_api_token"}, jira.Method("api_token").RequiredFields)
	assert.Nil(t, jira.Method("nope"))
}

func TestLoader_SkipsBrokenManifest(t *testing.T) {
	dir := t.TempDir()

	writeManifest(t, dir, "broken.yaml", "name: [unclosed")
	writeManifest(t, dir, "invalid.yaml", "title: Missing Name\n")
	writeManifest(t, dir, "linear.yaml", `
name: linear
title: Linear
requiredSecrets:
  - name: linear_client_id
  - name: linear_client_secret
oauth:
  authorizationUrl: https://linear.app/oauth/authorize
  tokenUrl: https://api.linear.app/oauth/token
  scopes: [read]
`)

	loader := NewLoader(dir, zap.NewNop())
	manifests := loader.Load()

	// Broken and invalid manifests are skipped, the rest of the catalog loads.
	require.Len(t, manifests, 2)
	assert.Equal(t, "linear", manifests[0].Name)
	assert.Equal(t, "atlassian", manifests[1].Name)
}

func TestLoader_MissingDirectoryStillYieldsBuiltins(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"), zap.NewNop())
	manifests := loader.Load()

	require.Len(t, manifests, 1)
	assert.Equal(t, "atlassian", manifests[0].Name)
}

func TestLoader_BuiltinAtlassianAppendedEvenWhenDuplicated(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "atlassian.yaml", `
name: atlassian
title: Atlassian (manifest)
requiredSecrets:
  - name: atlassian_site
`)

	loader := NewLoader(dir, zap.NewNop())
	manifests := loader.Load()

	// Known quirk: both the loaded manifest and the builtin entry survive.
	require.Len(t, manifests, 2)
	assert.Equal(t, "atlassian", manifests[0].Name)
	assert.Equal(t, "atlassian", manifests[1].Name)
}

func TestRequiredSecret_Optional(t *testing.T) {
	f := false
	tr := true

	assert.False(t, RequiredSecret{Name: "a"}.Optional())
	assert.False(t, RequiredSecret{Name: "a", Required: &tr}.Optional())
	assert.True(t, RequiredSecret{Name: "a", Required: &f}.Optional())
}
