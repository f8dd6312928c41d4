package snatch

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// sshdDropIn is the cloud-image override file that silently wins over
// sshd_config; password login stays broken unless both files are patched.
const sshdDropIn = "/etc/ssh/sshd_config.d/60-cloudimg-settings.conf"

// basePackages are installed on first boot before any user script runs.
var basePackages = []string{"curl", "wget", "unzip", "git", "socat", "cron"}

// cloudConfig renders the cloud-init document: set the ubuntu user's
// password, allow password authentication, keep root key-only, install
// the base packages (waiting out the apt lock, three tries), run the
// optional startup script, then restart sshd.
func cloudConfig(password, startupScript string) string {
	var sb strings.Builder
	sb.WriteString("#cloud-config\n")
	sb.WriteString("chpasswd:\n")
	sb.WriteString("  list: |\n")
	fmt.Fprintf(&sb, "    ubuntu:%s\n", password)
	sb.WriteString("  expire: false\n")
	sb.WriteString("runcmd:\n")
	sb.WriteString(`  - sed -i 's/^#\?PasswordAuthentication.*/PasswordAuthentication yes/g' /etc/ssh/sshd_config` + "\n")
	fmt.Fprintf(&sb, `  - if [ -f %s ]; then sed -i 's/^#\?PasswordAuthentication.*/PasswordAuthentication yes/g' %s; fi`+"\n", sshdDropIn, sshdDropIn)
	sb.WriteString(`  - sed -i 's/^#\?PermitRootLogin.*/PermitRootLogin prohibit-password/g' /etc/ssh/sshd_config` + "\n")
	sb.WriteString(installBlock())
	if startupScript != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(startupScript))
		fmt.Fprintf(&sb, "  - echo %s | base64 -d > /opt/startup.sh\n", encoded)
		sb.WriteString("  - bash /opt/startup.sh\n")
	}
	sb.WriteString("  - systemctl restart sshd || systemctl restart ssh || service ssh restart\n")
	return sb.String()
}

// installBlock waits for the dpkg lock before each try so a first-boot
// unattended-upgrade run cannot fail the install.
func installBlock() string {
	pkgs := strings.Join(basePackages, " ")
	return fmt.Sprintf(`  - |
    for i in 1 2 3; do
      while fuser /var/lib/dpkg/lock-frontend >/dev/null 2>&1; do sleep 5; done
      apt-get update -y && apt-get install -y %s && break
      sleep 10
    done
`, pkgs)
}

// UserData returns the base64-encoded cloud-init document for a launch.
func UserData(password, startupScript string) string {
	return base64.StdEncoding.EncodeToString([]byte(cloudConfig(password, startupScript)))
}
