package snatch

import (
	"encoding/base64"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserData(t *testing.T) {
	encoded := UserData("Secret123Pass", "echo hello > /tmp/hello")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	doc := string(decoded)

	assert.True(t, strings.HasPrefix(doc, "#cloud-config\n"))
	assert.Contains(t, doc, "ubuntu:Secret123Pass")
	assert.Contains(t, doc, "expire: false")

	// Both sshd_config and the cloud-image drop-in must be patched, or
	// password login stays silently disabled.
	assert.Contains(t, doc, `PasswordAuthentication yes/g' /etc/ssh/sshd_config`)
	assert.Contains(t, doc, "/etc/ssh/sshd_config.d/60-cloudimg-settings.conf")

	// Root stays key-only.
	assert.Contains(t, doc, "PermitRootLogin prohibit-password")
	assert.NotContains(t, doc, "PermitRootLogin yes")

	// Base packages behind the apt lock wait, three tries.
	assert.Contains(t, doc, "apt-get install -y curl wget unzip git socat cron")
	assert.Contains(t, doc, "/var/lib/dpkg/lock-frontend")
	assert.Contains(t, doc, "for i in 1 2 3; do")

	// The startup script rides along base64-encoded and runs after the
	// base install.
	scriptB64 := base64.StdEncoding.EncodeToString([]byte("echo hello > /tmp/hello"))
	assert.Contains(t, doc, scriptB64)
	assert.Contains(t, doc, "bash /opt/startup.sh")

	assert.Contains(t, doc, "systemctl restart sshd")
	installIdx := strings.Index(doc, "apt-get install")
	scriptIdx := strings.Index(doc, "bash /opt/startup.sh")
	restartIdx := strings.Index(doc, "systemctl restart sshd")
	assert.Less(t, installIdx, scriptIdx)
	assert.Less(t, scriptIdx, restartIdx)
}

func TestUserDataWithoutScript(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(UserData("pw", ""))
	require.NoError(t, err)
	assert.NotContains(t, string(decoded), "/opt/startup.sh")
}

func TestGeneratePassword(t *testing.T) {
	alnum := regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw := GeneratePassword(16)
		assert.Len(t, pw, 16)
		assert.Regexp(t, alnum, pw)
		seen[pw] = true
	}
	assert.Greater(t, len(seen), 1, "passwords must not repeat")
}
