// Package `lukshdr` builds LUKS header backup artifacts: the raw header
// extracted with `cryptsetup luksHeaderBackup` and its `luksDump` text, both
// stored under a name that includes the hostname, the volume UUID, and a
// short hash of the header.
package lukshdr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
)

const NamePrefix = "luks_header_backup"

const (
	ExtHeader = "img"
	ExtDump   = "txt"
)

// Artifact files are readable only by the owner.
const FileMode = 0600

type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
}

// `Artifact` describes the two files of a header backup.  It is not
// modified after `Build()` returns.
type Artifact struct {
	UUID       string
	HeaderPath string
	DumpPath   string
	Hash       string
}

func (a *Artifact) Files() []string {
	return []string{a.HeaderPath, a.DumpPath}
}

// `ArtifactError` tells which step failed for which device.
type ArtifactError struct {
	Device string
	UUID   string
	Step   string
	Err    error
}

func (err *ArtifactError) Error() string {
	return fmt.Sprintf(
		"failed to back up LUKS header of %s (UUID %s): %s: %v",
		err.Device, err.UUID, err.Step, err.Err,
	)
}

func (err *ArtifactError) Unwrap() error {
	return err.Err
}

// `ShortHash()` returns the first 4 bytes of the SHA-256 of `data` as 8
// lowercase hex characters.
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:4])
}

// `CanonicalName()` returns the file name of an artifact file, like
// `luks_header_backup.host.<uuid>.0123abcd.img`.
func CanonicalName(hostname, uuid, hash, ext string) string {
	return fmt.Sprintf("%s.%s.%s.%s.%s", NamePrefix, hostname, uuid, hash, ext)
}

func checkNameComponent(what, s string) error {
	if s == "" {
		return fmt.Errorf("empty %s", what)
	}
	if strings.ContainsAny(s, "/\x00") || s == "." || s == ".." {
		return fmt.Errorf("invalid %s `%s`", what, s)
	}
	return nil
}

// `Build()` extracts the header of `devPath` into `stagingDir`.  Files are
// first written to `<uuid>.img.tmp` and `<uuid>.txt.tmp` and renamed to
// their canonical names after hashing, so that the canonical names only
// ever refer to complete files.
func Build(
	ctx context.Context,
	lg Logger,
	runner execx.Runner,
	cryptsetupTool string,
	devPath, uuid, hostname, stagingDir string,
) (*Artifact, error) {
	fail := func(step string, err error) (*Artifact, error) {
		return nil, &ArtifactError{
			Device: devPath, UUID: uuid, Step: step, Err: err,
		}
	}

	if err := checkNameComponent("UUID", uuid); err != nil {
		return fail("validate", err)
	}
	if err := checkNameComponent("hostname", hostname); err != nil {
		return fail("validate", err)
	}

	lg.Infow(
		"Creating backup artifacts.",
		"device", devPath,
		"uuid", uuid,
	)

	tmpImg := filepath.Join(stagingDir, uuid+"."+ExtHeader+".tmp")
	tmpTxt := filepath.Join(stagingDir, uuid+"."+ExtDump+".tmp")

	if _, err := runner.Run(
		ctx, cryptsetupTool,
		"luksHeaderBackup", devPath,
		"--header-backup-file", tmpImg,
	); err != nil {
		return fail("luksHeaderBackup", err)
	}

	dump, err := runner.Run(ctx, cryptsetupTool, "luksDump", tmpImg)
	if err != nil {
		return fail("luksDump", err)
	}
	if err := os.WriteFile(tmpTxt, dump.Stdout, FileMode); err != nil {
		return fail("write dump", err)
	}

	hdr, err := os.ReadFile(tmpImg)
	if err != nil {
		return fail("read header", err)
	}
	hash := ShortHash(hdr)
	lg.Debugw("Computed header hash.", "uuid", uuid, "hash", hash)

	art := &Artifact{
		UUID: uuid,
		HeaderPath: filepath.Join(
			stagingDir, CanonicalName(hostname, uuid, hash, ExtHeader),
		),
		DumpPath: filepath.Join(
			stagingDir, CanonicalName(hostname, uuid, hash, ExtDump),
		),
		Hash: hash,
	}

	if err := os.Rename(tmpImg, art.HeaderPath); err != nil {
		return fail("rename header", err)
	}
	if err := os.Rename(tmpTxt, art.DumpPath); err != nil {
		return fail("rename dump", err)
	}

	for _, p := range art.Files() {
		if err := os.Chmod(p, FileMode); err != nil {
			return fail("chmod", err)
		}
	}

	lg.Infow("Saved header.", "path", art.HeaderPath)
	lg.Infow("Saved header dump.", "path", art.DumpPath)
	return art, nil
}
