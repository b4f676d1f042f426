// vim: sw=8

// Command `luks-header-backup` saves the headers of all LUKS volumes on a
// host and copies them to local directories and remote scp endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/nogproject/luks-header-backup/backend/internal/backupcfg"
	"github.com/nogproject/luks-header-backup/backend/internal/headerbackup"
	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
	"github.com/nogproject/luks-header-backup/backend/pkg/mulog"
	"github.com/nogproject/luks-header-backup/backend/pkg/zap"
)

// `xVersion` and `xBuild` are injected with `go build -ldflags "-X main.xVersion=..."`.
var (
	xVersion string
	xBuild   string
	version  = fmt.Sprintf("luks-header-backup-%s+%s", xVersion, xBuild)
)

// `qqBackticks()` translates double single quote to backtick.
func qqBackticks(s string) string {
	return strings.Replace(s, "''", "`", -1)
}

var usage = qqBackticks(`Usage:
  luks-header-backup [options] [--backup-path=<dir>...] [--remote-path=<endpoint>...]

Options:
  --backup-path=<dir>
        Local directory to copy the header backups to.  Created if missing.
  --remote-path=<endpoint>
        scp destination, like ''root@host:/backup/dir/''.  The host key must
        already be known; authentication must not prompt.
  --config=<yaml>
        Optional config file with ''backupPaths'', ''remotePaths'', ''limit'',
        ''jobs'', and ''lockFile''.  Paths from the command line are added.
  --limit=<bandwidth>
        Bandwidth limit in bytes per second for copies.  ''k'', ''m'', ... can
        be used, which are interpreted as binary SI.
  --jobs=<n>
        Number of destinations to copy to concurrently.  Default 1.
  --lock-file=<path>
        Hold a lock on ''<path>'' during the run to prevent concurrent runs.
  --lock-wait=<duration>  [default: 5s]
        Maximum time to wait for ''--lock-file''.
  --tmpdir=<dir>
        Parent directory for the private staging directory.
  --log=<logger>  [default: prod]
        Specify logger: prod, dev, or mu.
  --log-level=<level>  [default: info]
        Minimum log level: debug, info, warn, or error.

''luks-header-backup'' must run as root.  It finds LUKS volumes with ''blkid'',
saves each header with ''cryptsetup luksHeaderBackup'' together with the
''cryptsetup luksDump'' text, and copies both to every destination as:

    luks_header_backup.<hostname>.<uuid>.<hash>.img
    luks_header_backup.<hostname>.<uuid>.<hash>.txt

''<hash>'' is the first 8 hex digits of the SHA-256 of the header.

Exit codes: 0 if all headers were saved and every destination succeeded; 1
otherwise.
`)

type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Fatalw(msg string, kv ...interface{})
}

var lg Logger = mulog.Logger{}

func main() {
	args := argparse()

	var err error
	level := args["--log-level"].(string)
	switch args["--log"].(string) {
	case "prod":
		lg, err = zap.New("prod", level)
	case "dev":
		lg, err = zap.New("dev", level)
	case "mu":
		lg = mulog.Logger{Debug: level == "debug"}
	default:
		err = fmt.Errorf("Invalid --log option.")
	}
	if err != nil {
		log.Fatal(err)
	}

	settings := mustSettings(args)
	tools := mustLookTools(len(settings.RemotePaths) > 0)

	cfg := headerbackup.Config{
		Lg:          lg,
		Runner:      execx.Exec{},
		Tools:       tools,
		BackupPaths: settings.BackupPaths,
		RemotePaths: settings.RemotePaths,
		Limit:       settings.Limit,
		Jobs:        settings.Jobs,
		LockPath:    settings.LockFile,
		LockWait:    args["--lock-wait"].(time.Duration),
	}
	if d, ok := args["--tmpdir"].(string); ok {
		cfg.TempDir = d
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	rep, err := headerbackup.Run(ctx, cfg)
	stop()
	if err != nil {
		kv := []interface{}{"err", err}
		if rep != nil {
			kv = append(kv, "run", rep.RunID)
		}
		lg.Fatalw("LUKS header backup failed.", kv...)
	}
	lg.Infow("LUKS header backup completed.", "run", rep.RunID)
}

func argparse() map[string]interface{} {
	const autoHelp = true
	const noOptionFirst = false
	args, err := docopt.Parse(
		usage, nil, autoHelp, version, noOptionFirst,
	)
	if err != nil {
		lg.Fatalw("docopt failed.", "err", err)
	}

	if arg, ok := args["--jobs"].(string); ok {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			lg.Fatalw("Invalid --jobs.", "jobs", arg)
		}
		args["--jobs"] = v
	}

	arg := args["--lock-wait"].(string)
	d, err := time.ParseDuration(arg)
	if err != nil {
		lg.Fatalw("Invalid --lock-wait.", "err", err)
	}
	args["--lock-wait"] = d

	return args
}

func mustSettings(args map[string]interface{}) *backupcfg.Settings {
	var file *backupcfg.File
	if path, ok := args["--config"].(string); ok {
		f, err := backupcfg.Load(path)
		if err != nil {
			lg.Fatalw("Failed to load --config.", "err", err)
		}
		file = f
	}

	fl := backupcfg.Flags{
		BackupPaths: stringsArg(args, "--backup-path"),
		RemotePaths: stringsArg(args, "--remote-path"),
	}
	if v, ok := args["--limit"].(string); ok {
		fl.Limit = v
	}
	if v, ok := args["--jobs"].(int); ok {
		fl.Jobs = v
	}
	if v, ok := args["--lock-file"].(string); ok {
		fl.LockFile = v
	}

	s, err := backupcfg.Merge(file, fl)
	if err != nil {
		lg.Fatalw("Invalid settings.", "err", err)
	}
	if len(s.BackupPaths) == 0 && len(s.RemotePaths) == 0 {
		lg.Fatalw(
			"At least one of --remote-path or --backup-path must be provided.",
		)
	}
	return s
}

// `stringsArg()` returns a repeated option, which docopt may report as nil if
// it is absent.
func stringsArg(args map[string]interface{}, k string) []string {
	v, _ := args[k].([]string)
	return v
}

func mustLookTools(needScp bool) headerbackup.Tools {
	blkid, err := execx.LookTool(execx.ToolSpec{
		Program:   "blkid",
		CheckArgs: []string{"--version"},
		CheckText: "util-linux",
	})
	if err != nil {
		lg.Fatalw("Failed to find blkid.", "err", err)
	}

	cryptsetup, err := execx.LookTool(execx.ToolSpec{
		Program:   "cryptsetup",
		CheckArgs: []string{"--version"},
		CheckText: "cryptsetup",
	})
	if err != nil {
		lg.Fatalw("Failed to find cryptsetup.", "err", err)
	}

	tools := headerbackup.Tools{
		Blkid:      blkid.Path,
		Cryptsetup: cryptsetup.Path,
	}
	if needScp {
		// scp has no version flag.
		scp, err := execx.LookTool(execx.ToolSpec{Program: "scp"})
		if err != nil {
			lg.Fatalw("Failed to find scp.", "err", err)
		}
		tools.Scp = scp.Path
	}
	return tools
}
