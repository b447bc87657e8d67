// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

var ErrExpired = errors.New("license has expired")

// Config identifies the Keygen account and product. An empty Key disables
// validation.
type Config struct {
	Key     string
	Account string
	Product string
	Token   string
}

type validateFunc func(ctx context.Context, fingerprints ...string) (*keygen.License, error)

// KeygenValidator handles license validation using Keygen.sh
type KeygenValidator struct {
	logger      *zap.Logger
	cfg         Config
	validate    validateFunc
	fingerprint func() (string, error)
}

// NewKeygenValidator creates a new Keygen license validator
func NewKeygenValidator(cfg Config, logger *zap.Logger) *KeygenValidator {
	if cfg.Key != "" {
		keygen.Account = cfg.Account
		keygen.Product = cfg.Product
		keygen.Token = cfg.Token
		keygen.LicenseKey = cfg.Key
	}

	return &KeygenValidator{
		logger:      logger.Named("license"),
		cfg:         cfg,
		validate:    keygen.Validate,
		fingerprint: generateFingerprint,
	}
}

// Enabled reports whether a license key was configured.
func (kv *KeygenValidator) Enabled() bool {
	return kv.cfg.Key != ""
}

// ValidateLicense validates the configured key, activating this machine
// when the license is not activated yet.
func (kv *KeygenValidator) ValidateLicense(ctx context.Context) error {
	if !kv.Enabled() {
		kv.logger.Info("No license key configured, skipping validation")
		return nil
	}
	kv.logger.Info("🔑 Validating license", zap.String("key", maskKey(kv.cfg.Key)))

	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	license, err := kv.validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		if license == nil {
			return fmt.Errorf("license not found: %w", err)
		}
		kv.logger.Info("License not activated, attempting activation")
		machine, activateErr := license.Activate(ctx, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %w", activateErr)
		}
		kv.logger.Info("License activated successfully",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint),
		)

	case errors.Is(err, keygen.ErrLicenseExpired):
		return ErrExpired

	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}

	if license == nil {
		return errors.New("license not found")
	}

	kv.logger.Info("✅ License validation successful", zap.String("license_id", license.ID))
	return nil
}

// RunHeartbeat re-validates the license every interval until ctx is done.
// Failures are logged; the monitor keeps running.
func (kv *KeygenValidator) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if !kv.Enabled() || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := kv.heartbeat(ctx); err != nil {
				kv.logger.Warn("⚠️ License heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (kv *KeygenValidator) heartbeat(ctx context.Context) error {
	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}
	if _, err := kv.validate(ctx, fingerprint); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	kv.logger.Debug("License heartbeat sent successfully")
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..."
}

// generateFingerprint hashes hostname, first active MAC and OS.
func generateFingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var mac string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			mac = iface.HardwareAddr.String()
			break
		}
	}
	if mac == "" {
		return "", errors.New("no network interfaces found")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, runtime.GOOS)))
	return fmt.Sprintf("%x", hash), nil
}
