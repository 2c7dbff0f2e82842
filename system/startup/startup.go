package startup

import (
	"fmt"
	"os"
	"path/filepath"
)

const DefaultUnitPath = "/etc/systemd/system/rain-sensor.service"

// InstallService writes a systemd unit that runs binary against configFile.
// Both paths are made absolute so the unit does not depend on the caller's
// working directory.
func InstallService(unitPath, binary, configFile string) error {
	bin, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("resolve binary path: %w", err)
	}
	cfg, err := filepath.Abs(configFile)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	unit := fmt.Sprintf(`[Unit]
Description=Netatmo rain sensor accessory
Wants=network-online.target
After=network-online.target

[Service]
Type=simple
WorkingDirectory=%s
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, filepath.Dir(cfg), bin, cfg)

	return os.WriteFile(unitPath, []byte(unit), 0644)
}
