// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/busbridge"
	"github.com/Thermoquad/pdslink/pkg/simbus"
)

var (
	serveListen    string
	servePath      string
	serveCountdown time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose a simulated board's bus through the bridge",
	Long: `Run a simulated board and serve its I2C bus to bridge clients.

With --listen the bus is served over WebSocket; every client gets its own
session and transactions from all clients are serialized on the bus. With
--port the bus is served over a serial line instead.

When --username is set, WebSocket clients must authenticate with HTTP Basic
auth using that username and the PDSLINK_PASSWORD password.

Clients connect with the usual flags, for example:
  pdslink --url ws://localhost:8080/bus status`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address for WebSocket clients, e.g. :8080")
	serveCmd.Flags().StringVar(&servePath, "path", "/bus", "WebSocket endpoint path")
	serveCmd.Flags().DurationVar(&serveCountdown, "countdown", 0, "Start-up countdown before the bus is enabled")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen == "" && portName == "" {
		return fmt.Errorf("either --listen or --port must be specified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim, err := startSimBoard(simConfig(serveCountdown))
	if err != nil {
		return err
	}
	defer sim.stop()

	srv := busbridge.NewServer(sim.bus, func(err error) bool {
		return errors.Is(err, simbus.ErrNACK)
	})
	fmt.Printf("pdslink - Bridge Server\n")
	fmt.Printf("Board: %q at 0x%02X (%s protocol)\n", sim.board.Config().Name, sim.board.Address(), variantName(framed))

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Printf("Serving on serial %s @ %d baud\n", portName, baudRate)

		// the serial read blocks; closing the port unblocks it on cancel
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		if err := srv.Serve(ctx, conn); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	password := ""
	if wsUsername != "" {
		if password, err = GetPassword(); err != nil {
			return err
		}
	}
	mux := http.NewServeMux()
	mux.Handle(servePath, bridgeHandler(srv, wsUsername, password))
	httpSrv := &http.Server{Addr: serveListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	fmt.Printf("Serving on ws://%s%s\n", serveListen, servePath)
	fmt.Printf("Press Ctrl+C to exit\n")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// bridgeHandler upgrades each request to a WebSocket bridge session
func bridgeHandler(srv *busbridge.Server, username, password string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{bridgeSubprotocol},
		// tooling endpoint; clients are not browsers
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username != "" && !checkBasicAuth(r, username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pdslink"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Warningf("bridge: upgrade from %s: %v", r.RemoteAddr, err)
			return
		}
		conn := &WebSocketConnection{conn: ws}
		defer conn.Close()

		glog.Infof("bridge: client %s connected", r.RemoteAddr)
		if err := srv.Serve(r.Context(), conn); err != nil {
			glog.Warningf("bridge: client %s: %v", r.RemoteAddr, err)
			return
		}
		glog.Infof("bridge: client %s disconnected", r.RemoteAddr)
	})
}

func checkBasicAuth(r *http.Request, username, password string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
	return userOK && passOK
}
