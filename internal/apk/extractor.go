package apk

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Launcher icons ship as PNG, JPEG or WebP depending on build tooling.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	apkparser "github.com/shogo82148/androidbinary/apk"
	"github.com/sirupsen/logrus"
	"go.mozilla.org/pkcs7"
)

// Metadata is everything extracted from a candidate APK. Extraction is
// best-effort per field: a missing or unparsable field stays at its zero
// value, only an unreadable archive is a hard error.
type Metadata struct {
	FileName    string
	AppName     string
	PackageName string
	VersionName string
	VersionCode int32
	MinSDK      int32
	TargetSDK   int32
	Permissions []string

	// Icon is the decoded launcher icon, nil when absent or undecodable.
	Icon image.Image

	// CertSHA256 is the hex SHA-256 fingerprint of the signing certificate.
	CertSHA256 string

	FileSize int64
	MD5      string
	SHA256   string
}

// Extractor reads APK metadata using the binary AndroidManifest and
// resource-table parser, plus the META-INF signing block for the
// certificate fingerprint.
type Extractor struct {
	logger *logrus.Logger
}

func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses the APK at apkPath. Typical duration is well under a
// second; ctx is honored between the hash and parse phases.
func (e *Extractor) Extract(ctx context.Context, apkPath string) (*Metadata, error) {
	startTime := time.Now()

	e.logger.WithField("apk_path", apkPath).Info("Starting APK extraction")

	meta := &Metadata{
		FileName:    filepath.Base(apkPath),
		Permissions: []string{},
	}

	fileInfo, err := os.Stat(apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat APK file: %w", err)
	}
	meta.FileSize = fileInfo.Size()

	// Hash the file while the manifest is being parsed.
	hashChan := make(chan [2]string, 1)
	go func() {
		md5sum, sha256sum, err := e.calculateHashes(apkPath)
		if err != nil {
			e.logger.WithError(err).Warn("Failed to calculate APK hashes")
			hashChan <- [2]string{"", ""}
			return
		}
		hashChan <- [2]string{md5sum, sha256sum}
	}()

	pkg, err := apkparser.OpenFile(apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open APK: %w", err)
	}
	defer pkg.Close()

	meta.PackageName = pkg.PackageName()

	if label, err := pkg.Label(nil); err == nil {
		meta.AppName = label
	} else {
		e.logger.WithError(err).WithField("apk", meta.FileName).Warn("Failed to resolve app label")
	}

	manifest := pkg.Manifest()
	if v, err := manifest.VersionName.String(); err == nil {
		meta.VersionName = v
	}
	if v, err := manifest.VersionCode.Int32(); err == nil {
		meta.VersionCode = v
	}
	if v, err := manifest.SDK.Min.Int32(); err == nil {
		meta.MinSDK = v
	}
	if v, err := manifest.SDK.Target.Int32(); err == nil {
		meta.TargetSDK = v
	}

	for _, perm := range manifest.UsesPermissions {
		if name, err := perm.Name.String(); err == nil && name != "" {
			meta.Permissions = append(meta.Permissions, name)
		}
	}

	if icon, err := pkg.Icon(nil); err == nil {
		meta.Icon = icon
	} else {
		e.logger.WithError(err).WithField("apk", meta.FileName).Warn("Failed to decode launcher icon")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if fp, err := e.certFingerprint(apkPath); err == nil {
		meta.CertSHA256 = fp
	} else {
		e.logger.WithError(err).WithField("apk", meta.FileName).Warn("Failed to extract signing certificate")
	}

	hashes := <-hashChan
	meta.MD5 = hashes[0]
	meta.SHA256 = hashes[1]

	e.logger.WithFields(logrus.Fields{
		"package_name": meta.PackageName,
		"app_name":     meta.AppName,
		"permissions":  len(meta.Permissions),
		"has_icon":     meta.Icon != nil,
		"duration_ms":  time.Since(startTime).Milliseconds(),
	}).Info("APK extraction completed")

	return meta, nil
}

// calculateHashes computes MD5 and SHA-256 in a single pass.
func (e *Extractor) calculateHashes(apkPath string) (string, string, error) {
	file, err := os.Open(apkPath)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	md5Hash := md5.New()
	sha256Hash := sha256.New()
	multiWriter := io.MultiWriter(md5Hash, sha256Hash)

	if _, err := io.Copy(multiWriter, file); err != nil {
		return "", "", err
	}

	return hex.EncodeToString(md5Hash.Sum(nil)), hex.EncodeToString(sha256Hash.Sum(nil)), nil
}

// certFingerprint extracts the SHA-256 fingerprint of the first signing
// certificate from the META-INF PKCS#7 signature block.
func (e *Extractor) certFingerprint(apkPath string) (string, error) {
	reader, err := zip.OpenReader(apkPath)
	if err != nil {
		return "", fmt.Errorf("failed to open APK as zip: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if !isSignatureBlock(f.Name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			e.logger.WithError(err).WithField("entry", f.Name).Warn("Failed to open signature block")
			continue
		}
		der, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			e.logger.WithError(err).WithField("entry", f.Name).Warn("Failed to read signature block")
			continue
		}

		p7, err := pkcs7.Parse(der)
		if err != nil {
			e.logger.WithError(err).WithField("entry", f.Name).Warn("Failed to parse PKCS#7 block")
			continue
		}
		if len(p7.Certificates) == 0 {
			continue
		}

		sum := sha256.Sum256(p7.Certificates[0].Raw)
		return hex.EncodeToString(sum[:]), nil
	}

	return "", fmt.Errorf("no signing certificate found")
}

// isSignatureBlock reports whether a zip entry is a v1 signature block
// (META-INF/*.RSA, *.DSA or *.EC).
func isSignatureBlock(name string) bool {
	if !strings.HasPrefix(name, "META-INF/") {
		return false
	}
	switch strings.ToUpper(filepath.Ext(name)) {
	case ".RSA", ".DSA", ".EC":
		return true
	}
	return false
}
