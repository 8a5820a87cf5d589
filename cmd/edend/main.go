// edend is the daemon entry point: it reads a TOML config, builds the
// object store / overlay / journal backends it names, bootstraps an
// InodeMap per mount, and serves each over FUSE. Grounded on the
// teacher's cmd/quantumfsd/quantumfsd.go and daemon/mux.go's Mount.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/config"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/journal"
	"github.com/Happy-Ferret/eden/mount"
	"github.com/Happy-Ferret/eden/objectstore/cqlstore"
	"github.com/Happy-Ferret/eden/objectstore/memstore"
	"github.com/Happy-Ferret/eden/overlay/boltoverlay"
	"github.com/Happy-Ferret/eden/overlay/memoverlay"
	"github.com/Happy-Ferret/eden/qlog"
)

const (
	exitBadArgs     = 1
	exitBadConfig   = 2
	exitBackendFail = 3
	exitMountFail   = 4
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: edend <config.toml>")
		os.Exit(exitBadArgs)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "edend:", err)
		os.Exit(exitBadConfig)
	}

	log := qlog.New(cfg.LogCapacity)

	servers := make([]*fuse.Server, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		srv, err := mountOne(log, m)
		if err != nil {
			fmt.Fprintln(os.Stderr, "edend:", err)
			os.Exit(exitMountFail)
		}
		servers = append(servers, srv)
	}

	for _, srv := range servers {
		go srv.Serve()
	}
	for _, srv := range servers {
		srv.Wait()
	}
}

func mountOne(log *qlog.Qlog, m config.Mount) (*fuse.Server, error) {
	store, err := buildObjectStore(m)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.MountPath, err)
	}
	ovl, err := buildOverlay(m)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.MountPath, err)
	}
	jrnl, err := buildJournal(m)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.MountPath, err)
	}

	c := eden.NewCtx(context.Background(), log)
	imap, err := inodes.NewMount(c, store, ovl, jrnl, nil)
	if err != nil {
		return nil, fmt.Errorf("mount %s: bootstrapping root: %w", m.MountPath, err)
	}

	fs := mount.New(imap, log, mount.Config{
		MountPath:        m.MountPath,
		CacheTimeSeconds: m.CacheTimeSeconds,
		CacheTimeNsecs:   m.CacheTimeNsecs,
		AllowOther:       m.AllowOther,
	})

	mountOptions := fuse.MountOptions{
		AllowOther:    m.AllowOther,
		MaxBackground: 1024,
		FsName:        "edenvfs",
		Name:          "edenvfs",
		Options:       []string{"suid", "dev", "default_permissions"},
	}

	srv, err := fuse.NewServer(fs, m.MountPath, &mountOptions)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.MountPath, err)
	}
	fs.SetServer(srv)
	return srv, nil
}

func buildObjectStore(m config.Mount) (eden.ObjectStore, error) {
	switch m.ObjectStoreKind {
	case "cql":
		return cqlstore.Open(cqlstore.Config{
			Hosts:    m.CqlHosts,
			Keyspace: m.CqlKeyspace,
			Table:    m.CqlTable,
		})
	default:
		return memstore.New(), nil
	}
}

func buildOverlay(m config.Mount) (eden.Overlay, error) {
	switch m.OverlayKind {
	case "bolt":
		return boltoverlay.Open(m.OverlayPath)
	default:
		return memoverlay.New(), nil
	}
}

func buildJournal(m config.Mount) (eden.Journal, error) {
	if m.JournalPath == "" {
		return journal.NewMemJournal(4096), nil
	}
	return journal.OpenFileJournal(m.JournalPath)
}
