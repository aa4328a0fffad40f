package checks

import (
	"context"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sassoftware/go-rpmutils"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// SignatureCheck verifies the GPG signature of file-backed packages
// against the configured keyring.
type SignatureCheck struct{}

func (SignatureCheck) Name() string { return "signature" }

func (SignatureCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, cfg *config.Config) ([]models.Diagnostic, error) {
	if pkg.Installed() {
		return nil, nil
	}

	keyring, err := loadKeyring(cfg.String("keyring"))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(pkg.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, sigs, err := rpmutils.Verify(f, keyring)
	if err != nil {
		return []models.Diagnostic{
			diag("signature", "invalid-signature", models.SeverityError, err.Error()),
		}, nil
	}

	if len(sigs) == 0 {
		return []models.Diagnostic{
			diag("signature", "no-signature", models.SeverityWarning),
		}, nil
	}

	// Only meaningful when a keyring was configured: with no known
	// keys every signer is unknown.
	if keyring != nil {
		for _, sig := range sigs {
			if sig.Signer == nil {
				return []models.Diagnostic{
					diag("signature", "unknown-key", models.SeverityWarning),
				}, nil
			}
		}
	}

	return nil, nil
}

func loadKeyring(path string) (openpgp.EntityList, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		// Try as binary keyring
		if _, serr := f.Seek(0, 0); serr != nil {
			return nil, serr
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}
	return keyring, nil
}

func (SignatureCheck) Descriptions() map[string]string {
	return map[string]string{
		"no-signature": "The package carries no GPG signature. " +
			"Distribution packages must be signed so installers can verify " +
			"their origin.",
		"unknown-key": "The package is signed, but not by any key in the " +
			"configured keyring (option keyring).",
		"invalid-signature": "The signature header failed to verify: the " +
			"package was modified after signing or the signature is broken.",
	}
}
