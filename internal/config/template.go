package config

// Starter is the commented document written by `prefsync init`.
const Starter = `# prefsync target-state document.
#
# Preference assignments live under "set", grouped by domain. Short domain
# names are expanded to com.apple.<name>; fully qualified names pass through.

set:
  dock:
    tilesize: 46
    autohide: true
  finder:
    AppleShowAllFiles: true
  NSGlobalDomain:
    InitialKeyRepeat: 15

# Variables usable in command text as $name or ${name}.
vars: {}

# External commands run after preferences converge. ensure_first commands run
# sequentially before everything else; flag-gated commands only run with
# --flagged or --all.
commands: {}
#  hostname:
#    run: scutil --set ComputerName "$hostname"
#    sudo: true
#    ensure_first: true
#    required: [scutil]

# Auxiliary package lists kept in sync by the package manager wrapper.
#packages:
#  formulae: []
#  casks: []
#  taps: []

# Remote document source. With autosync enabled, status/apply refresh the
# local document first.
#remote:
#  url: https://example.com/prefsync.yaml
#  autosync: true
`
