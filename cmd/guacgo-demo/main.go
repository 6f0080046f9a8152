// Command guacgo-demo is a minimal daemon exercising the session core
// end to end: viewers connect over a WebSocket, the webrtcdemo backend
// drives a synthetic frame loop, and inbound instructions are dispatched
// through a bounded worker pool (spec §1, §6).
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/netios/guacamole-server/internal/config"
	"github.com/netios/guacamole-server/internal/logging"
	"github.com/netios/guacamole-server/internal/workerpool"
	"github.com/netios/guacamole-server/pkg/backend/webrtcdemo"
	"github.com/netios/guacamole-server/pkg/plugin"
	"github.com/netios/guacamole-server/pkg/session"
	"github.com/netios/guacamole-server/pkg/wsocket"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "guacgo-demo",
	Short: "guacgo session core demo daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the demo daemon",
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("guacgo-demo v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/guacgo/guacgo.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// daemon owns the one session this demo serves: only the first
// connecting viewer becomes owner and drives the webrtcdemo handshake.
type daemon struct {
	s          *session.Session
	pool       *workerpool.Pool
	upgrader   websocket.Upgrader
	ownerTaken atomic.Bool
}

func runDaemon() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	registry := plugin.NewRegistry()
	registry.Register("webrtcdemo", func() (session.InitFunc, session.Binding, error) {
		b := webrtcdemo.New(0)
		return b.Init, plugin.NoopBinding{}, nil
	})

	s := session.New(int64(cfg.LagThresholdMS))
	if err := s.LoadPlugin(registry, "webrtcdemo"); err != nil {
		log.Error("failed to load protocol plugin", "error", err)
		os.Exit(1)
	}

	d := &daemon{
		s:    s,
		pool: workerpool.New(cfg.MaxConcurrentBackends, cfg.BackendQueueSize),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", d.handleSession)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "session", s.ID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	d.pool.StopAccepting()
	d.pool.Drain(shutdownCtx)

	s.Free()
	log.Info("stopped")
}

func (d *daemon) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	owner := !d.ownerTaken.Swap(true)
	sock := wsocket.New(conn)
	v := session.NewViewer(sock, owner, session.Capabilities{})

	joinArgs := []string{}
	if owner {
		offer := r.URL.Query().Get("offer")
		joinArgs = []string{offer}
	}

	if _, err := d.s.AddViewer(v, joinArgs); err != nil {
		log.Warn("viewer rejected", "error", err)
		v.Stop()
		return
	}

	d.readLoop(v)
}

// readLoop parses inbound wire instructions off the raw connection and
// submits each to the worker pool for dispatch, isolating slow handlers
// from the read path (spec §5).
func (d *daemon) readLoop(v *session.Viewer) {
	defer func() {
		d.s.RemoveViewer(v)
		v.Stop()
	}()

	conn := v.Socket().(interface{ RawConn() *websocket.Conn }).RawConn()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		opcode, argv, err := parseInstruction(string(data))
		if err != nil {
			log.Warn("malformed instruction", "viewer", v.ID(), "error", err)
			continue
		}
		viewer := v
		if !d.pool.Submit(func() {
			if err := viewer.HandleInstruction(opcode, argv); err != nil {
				viewer.Log(session.LogWarn, "instruction %q failed: %v", opcode, err)
			}
		}) {
			log.Warn("worker pool saturated, dropping instruction", "viewer", v.ID(), "opcode", opcode)
		}
	}
}

// parseInstruction splits one "length.value,length.value;" wire
// instruction into its opcode and argument list. This demo's own parser
// is intentionally minimal; a full wire codec is out of scope (spec §1).
func parseInstruction(raw string) (string, []string, error) {
	raw = strings.TrimSuffix(raw, ";")
	var elems []string
	for len(raw) > 0 {
		dot := strings.IndexByte(raw, '.')
		if dot < 0 {
			return "", nil, fmt.Errorf("missing length prefix in %q", raw)
		}
		var n int
		if _, err := fmt.Sscanf(raw[:dot], "%d", &n); err != nil {
			return "", nil, fmt.Errorf("invalid length prefix in %q: %w", raw, err)
		}
		start := dot + 1
		if start+n > len(raw) {
			return "", nil, fmt.Errorf("truncated element in %q", raw)
		}
		elems = append(elems, raw[start:start+n])
		raw = raw[start+n:]
		if len(raw) > 0 && raw[0] == ',' {
			raw = raw[1:]
		}
	}
	if len(elems) == 0 {
		return "", nil, fmt.Errorf("empty instruction")
	}
	return elems[0], elems[1:], nil
}
