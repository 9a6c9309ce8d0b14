package rpc

import (
	"net"
	"net/http"
	"net/http/pprof"

	rpcserver "github.com/tendermint/tendermint/rpc/lib/server"

	"github.com/loomnetwork/featurechain/log"
)

// RPCServer serves the query service on bindAddr (e.g. tcp://127.0.0.1:9999) until the returned
// listener is closed.
func RPCServer(qsvc QueryService, logger log.Logger, bindAddr string, pprofEnabled bool) (net.Listener, error) {
	mux := http.NewServeMux()
	mux.Handle("/", MakeQueryServiceHandler(qsvc, logger))
	if pprofEnabled {
		registerPprof(mux)
	}

	listener, err := rpcserver.Listen(bindAddr, rpcserver.Config{})
	if err != nil {
		return nil, err
	}
	logger.Info("Query server listening", "addr", listener.Addr().String(), "pprof", pprofEnabled)
	go rpcserver.StartHTTPServer(listener, mux, logger)
	return listener, nil
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
