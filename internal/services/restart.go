// Package services restarts the UI processes that cache preference state so
// applied changes take effect.
package services

import (
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"prefsync/internal/logging"
)

// affected maps a changed domain to the processes that must be restarted for
// the change to be visible. The global domain touches all of them.
var affected = map[string][]string{
	"com.apple.dock":          {"Dock"},
	"com.apple.finder":        {"Finder"},
	"com.apple.Safari":        {"Safari"},
	"NSGlobalDomain":          {"SystemUIServer", "Finder", "Dock", "ControlCenter", "NotificationCenter"},
	"com.apple.controlcenter": {"ControlCenter"},
}

// ForDomains resolves the deduplicated, order-stable service list for a set
// of changed domains. Domains with no mapping restart SystemUIServer, which
// rereads most preference files.
func ForDomains(domains []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(svc string) {
		if _, ok := seen[svc]; !ok {
			seen[svc] = struct{}{}
			out = append(out, svc)
		}
	}
	for _, dom := range domains {
		svcs, ok := affected[dom]
		if !ok {
			add("SystemUIServer")
			continue
		}
		for _, svc := range svcs {
			add(svc)
		}
	}
	return out
}

// Restart kills each service so the OS relaunches it with fresh preference
// state. Individual failures are logged and do not stop the rest.
func Restart(ctx context.Context, services []string, dryRun bool, log *zap.SugaredLogger) {
	for _, svc := range services {
		if dryRun {
			logging.Dry(log, "would restart %s", svc)
			continue
		}
		out, err := exec.CommandContext(ctx, "killall", svc).CombinedOutput()
		if err != nil {
			// "No matching processes" just means the service was not running.
			if strings.Contains(string(out), "No matching processes") {
				continue
			}
			log.Warnf("could not restart %s: %v", svc, err)
			continue
		}
		log.Infof("restarted %s", svc)
	}
}
