package rpc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amino "github.com/tendermint/go-amino"
	rpcserver "github.com/tendermint/tendermint/rpc/lib/server"

	"github.com/loomnetwork/featurechain/log"
)

// QueryService provides the methods clients use to inspect the protocol features of a node.
type QueryService interface {
	// Features lists every feature in the catalog, in registration order.
	Features() ([]FeatureInfo, error)
	// Feature looks up a single feature by hex digest, builtin codename, or name.
	Feature(id string) (*FeatureInfo, error)
	// Activations lists the activation history of the current branch, oldest first.
	Activations() ([]ActivationInfo, error)
	// Pending lists the preactivated features that'll be activated by the next block.
	Pending() ([]PendingInfo, error)
	Status() (*StatusInfo, error)
}

type FeatureInfo struct {
	Digest       string
	Name         string
	Description  string
	Builtin      bool
	Dependencies []string
	ProducerOnly bool
	// Unix time, zero if there's no restriction.
	EarliestActivation int64
	Active             bool
	ActivationHeight   int64
	Pending            bool
}

type ActivationInfo struct {
	Digest string
	Name   string
	Height int64
}

type PendingInfo struct {
	Digest      string
	Name        string
	Height      int64
	ActionIndex uint32
}

type StatusInfo struct {
	ChainID         string
	Height          int64
	BlockTime       int64
	NumFeatures     int64
	NumActivated    int64
	NumPreactivated int64
}

func QueryServiceRPCRoutes(svc QueryService) map[string]*rpcserver.RPCFunc {
	routes := map[string]*rpcserver.RPCFunc{}
	routes["features"] = rpcserver.NewRPCFunc(svc.Features, "")
	routes["feature"] = rpcserver.NewRPCFunc(svc.Feature, "id")
	routes["activations"] = rpcserver.NewRPCFunc(svc.Activations, "")
	routes["pending"] = rpcserver.NewRPCFunc(svc.Pending, "")
	routes["status"] = rpcserver.NewRPCFunc(svc.Status, "")
	return routes
}

// MakeQueryServiceHandler returns a http handler that serves the query service over JSON-RPC 2.0
// (POST /) and URI (GET /<method>), plus the Prometheus metrics at /metrics.
func MakeQueryServiceHandler(svc QueryService, logger log.Logger) http.Handler {
	codec := amino.NewCodec()
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, QueryServiceRPCRoutes(svc), codec, logger)
	mux.Handle("/metrics", promhttp.Handler())
	return CORSMethodMiddleware(mux)
}

func CORSMethodMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler.ServeHTTP(w, req)
	})
}
