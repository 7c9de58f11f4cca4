// Command ntorrent is the CLI entrypoint: it loads configuration, brings up
// a netface.Face, wires a manager.TorrentManager, registers the peers
// named on the command line, and runs one download/seed session to
// completion or until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anacrolixlog "github.com/anacrolix/log"
	"github.com/spf13/afero"

	"github.com/Eric-lightning/nTorrent/config"
	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/face/netface"
	"github.com/Eric-lightning/nTorrent/manager"
	"github.com/Eric-lightning/nTorrent/ndn"
)

type peerFlag struct {
	names []ndn.Name
	addrs map[string]string
}

func (p *peerFlag) String() string { return fmt.Sprint(p.names) }

// Set parses one -peer flag value of the form "name/components=host:port".
func (p *peerFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("peer flag %q: expected name=host:port", value)
	}
	name := ndn.NameFromStrings(strings.Split(strings.Trim(parts[0], "/"), "/")...)
	if p.addrs == nil {
		p.addrs = make(map[string]string)
	}
	p.addrs[name.String()] = parts[1]
	p.names = append(p.names, name)
	return nil
}

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (defaults if omitted)")
	listenAddr := flag.String("listen", "127.0.0.1:6363", "address this face listens on for peer connections")
	torrentRoot := flag.String("torrent", "", "slash-separated torrent root name, e.g. alice/movie")
	ownName := flag.String("name", "", "slash-separated routable name this peer advertises for ALIVE probes")
	var peers peerFlag
	flag.Var(&peers, "peer", "peer to register, name=host:port (repeatable)")
	flag.Parse()

	if *torrentRoot == "" {
		fmt.Fprintln(os.Stderr, "ntorrent: -torrent is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		anacrolixlog.Printf("ntorrent: config: %v", err)
		os.Exit(1)
	}

	f := netface.New(*listenAddr, func(peer ndn.Name) (string, bool) {
		addr, ok := peers.addrs[peer.String()]
		return addr, ok
	})
	if err := f.Start(); err != nil {
		anacrolixlog.Printf("ntorrent: face: %v", err)
		os.Exit(1)
	}

	fs := afero.NewOsFs()
	keychain := face.NewSha256KeyChain()
	ownPrefix := ndn.NameFromStrings(strings.Split(strings.Trim(*ownName, "/"), "/")...)
	m := manager.New(f, fs, keychain, ownPrefix, cfg.Manager())
	for _, p := range peers.names {
		m.AddPeer(p)
	}

	torrentName := ndn.NameFromStrings(strings.Split(strings.Trim(*torrentRoot, "/"), "/")...).
		Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := m.Run(ctx, torrentName); err != nil && err != context.Canceled {
		anacrolixlog.Printf("ntorrent: run: %v", err)
		os.Exit(1)
	}
}
